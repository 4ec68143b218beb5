// Package storeemu is a local stand-in for the object store's signed upload API.
//
// It accepts the same multipart submission as the hosted store, recomputes the signature with the
// shared signing routine, enforces the timestamp validity window, keeps the payload in a
// storage.BlobStore and answers with the store's response shape, including the decoded context.
// Stored assets are served back under /files/.
package storeemu

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage/memory"
	s3storage "github.com/tendant/simple-upload/pkg/simpleupload/storage/s3"
)

// Server emulates one store account.
type Server struct {
	identity    string
	apiKey      string
	signer      *signing.Signer
	blobs       storage.BlobStore
	publicURL   string
	maxFileSize int64
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

type options struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock overrides the time source used to check signature freshness.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator overrides how asset ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newID = fn
	}
}

// New creates a store emulator for the account described by cfg.
func New(cfg *config.Config, blobs storage.BlobStore, opts ...Option) (*Server, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}

	o := &options{
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(o)
	}

	signerOpts := append(cfg.SignerOptions(), signing.WithClock(o.now))
	return &Server{
		identity:    cfg.Identity,
		apiKey:      cfg.PublicKey,
		signer:      signing.New(signerOpts...),
		blobs:       blobs,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		maxFileSize: cfg.MaxFileSize(),
		logger:      o.logger,
		now:         o.now,
		newID:       o.newID,
	}, nil
}

// OpenBlobStore builds a blob store from a storage URL:
//
//	memory://
//	s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true&create_bucket=true
//
// S3 credentials come from AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY or the default chain.
func OpenBlobStore(ctx context.Context, storageURL string) (storage.BlobStore, error) {
	if storageURL == "" || storageURL == "memory" {
		return memory.New(), nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_URL %q: %w", storageURL, err)
	}

	switch u.Scheme {
	case "memory":
		return memory.New(), nil
	case "s3":
		q := u.Query()
		pathStyle, _ := strconv.ParseBool(q.Get("path_style"))
		createBucket, _ := strconv.ParseBool(q.Get("create_bucket"))
		backend, err := s3storage.New(ctx, s3storage.Config{
			Bucket:                 u.Host,
			Region:                 q.Get("region"),
			Endpoint:               q.Get("endpoint"),
			UsePathStyle:           pathStyle,
			CreateBucketIfNotExist: createBucket,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://' or 's3://...')", storageURL)
	}
}
