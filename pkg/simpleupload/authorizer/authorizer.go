// Package authorizer signs candidate upload parameter sets on behalf of untrusted clients.
package authorizer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
)

// Authorizer is stateless apart from its immutable signer and may be shared by any number of
// goroutines.
type Authorizer struct {
	signer *signing.Signer
	logger *slog.Logger
}

type options struct {
	logger      *slog.Logger
	signingOpts []signing.Option
}

// Option configures an Authorizer.
type Option func(*options)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock overrides the time source of issued timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.signingOpts = append(o.signingOpts, signing.WithClock(now))
	}
}

// New creates an Authorizer from cfg. A missing secret is not an error here; every Authorize call
// reports it instead, so a misconfigured server still answers requests.
func New(cfg *config.Config, opts ...Option) *Authorizer {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	signerOpts := append(cfg.SignerOptions(), o.signingOpts...)
	return &Authorizer{
		signer: signing.New(signerOpts...),
		logger: o.logger,
	}
}

// Ready reports whether the authorizer holds a secret.
func (a *Authorizer) Ready() bool {
	return a.signer.IsEnabled()
}

// Authorize signs the non-empty parameters of req together with a freshly generated timestamp.
// A timestamp supplied by the caller is ignored.
func (a *Authorizer) Authorize(ctx context.Context, req simpleupload.AuthorizationRequest) (simpleupload.AuthorizationToken, error) {
	if !a.signer.IsEnabled() {
		a.logger.ErrorContext(ctx, "Signing secret missing, refusing to authorize")
		return simpleupload.AuthorizationToken{}, &simpleupload.ConfigError{Op: "authorize", Field: "secret"}
	}
	if req.Timestamp != nil {
		a.logger.DebugContext(ctx, "Ignoring client supplied timestamp", "timestamp", *req.Timestamp)
	}

	params := signing.FromRequest(req)
	token, err := a.signer.Authorize(params)
	if err != nil {
		if errors.Is(err, signing.ErrNoSecretKey) {
			return simpleupload.AuthorizationToken{}, &simpleupload.ConfigError{Op: "authorize", Field: "secret"}
		}
		return simpleupload.AuthorizationToken{}, err
	}

	a.logger.InfoContext(ctx, "Authorized upload",
		"folder", req.Folder,
		"upload_preset", req.UploadPreset,
		"timestamp", token.Timestamp,
		"signature_prefix", token.Signature[:8])
	return token, nil
}
