// Package client uploads files to the object store through the signed-upload protocol.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/metadata"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
)

// Client provides methods for uploading files through an authorizer
type Client struct {
	cfg          config.Config
	codec        metadata.Codec
	httpClient   *http.Client
	authToken    string
	progressFunc ProgressFunc
	observer     StateObserver
	logger       *slog.Logger
}

// ProgressFunc is called during a submission with the number of bytes sent so far
type ProgressFunc func(bytesUploaded int64)

// StateObserver is called after every state change of a batch item
type StateObserver func(item Item)

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// New creates a client from cfg. cfg is copied; required settings are checked on every upload so a
// misconfigured client fails with a configuration error before any network call.
func New(cfg *config.Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        *cfg,
		codec:      cfg.Codec(),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAuthToken sends token as a bearer credential to the authorizer
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithProgress sets a progress callback for store submissions
func WithProgress(fn ProgressFunc) ClientOption {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// WithStateObserver sets a callback that sees every batch item transition
func WithStateObserver(fn StateObserver) ClientOption {
	return func(c *Client) {
		c.observer = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithCodec overrides the metadata codec chosen by the configuration
func WithCodec(codec metadata.Codec) ClientOption {
	return func(c *Client) {
		c.codec = codec
	}
}

// Upload uploads one file under the contributor's name and message.
func (c *Client) Upload(ctx context.Context, file simpleupload.File, name, message string) (*simpleupload.UploadResult, error) {
	batch, err := c.UploadBatch(ctx, []simpleupload.File{file}, name, message)
	if err != nil {
		return nil, err
	}
	return batch.Results()[0], nil
}

// UploadBatch uploads files one after another. Every file gets its own authorization. The first
// failure stops the batch; the returned batch then reports no results, only the outcomes up to and
// including the failed file.
func (c *Client) UploadBatch(ctx context.Context, files []simpleupload.File, name, message string) (*Batch, error) {
	if err := c.cfg.ValidateClient(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &simpleupload.ValidationError{Field: "files", Reason: "must not be empty"}
	}

	batch := newBatch(ksuid.New().String(), files)
	logger := c.logger.With("batch_id", batch.ID, "files", len(files))

	// every file is checked before the first network call
	for i, f := range files {
		if err := c.validateFile(f); err != nil {
			batch.fail(batch.Items[i], err, c.observer)
			return batch, batch.Err()
		}
	}

	contributor := simpleupload.Contributor{Name: name, Message: message}
	for i, f := range files {
		item := batch.Items[i]
		if err := c.uploadOne(ctx, batch, item, f, contributor); err != nil {
			logger.Error("Batch upload aborted", "file", f.Name, "index", i, "error", err)
			return batch, batch.Err()
		}
	}

	logger.Info("Batch upload completed")
	return batch, nil
}

func (c *Client) uploadOne(ctx context.Context, batch *Batch, item *Item, f simpleupload.File, contributor simpleupload.Contributor) error {
	params, err := c.Params(contributor)
	if err != nil {
		batch.fail(item, err, c.observer)
		return err
	}

	batch.advance(item, StateAuthorizing, c.observer)
	token, err := c.Authorize(ctx, params)
	if err != nil {
		batch.fail(item, err, c.observer)
		return err
	}

	batch.advance(item, StateSubmitting, c.observer)
	resp, err := c.Submit(ctx, f, params, token)
	if err != nil {
		batch.fail(item, err, c.observer)
		return err
	}

	item.Result = c.toResult(resp, params)
	batch.advance(item, StateDone, c.observer)
	return nil
}

// Params builds the candidate parameter set for a contributor. The same value is sent to the
// authorizer and submitted to the store.
func (c *Client) Params(contributor simpleupload.Contributor) (signing.Params, error) {
	encoded, err := c.codec.Encode(metadata.FromContributor(contributor))
	if err != nil {
		return nil, err
	}

	params := signing.Params{}
	params.Set(simpleupload.ParamContext, encoded)
	params.Set(simpleupload.ParamFolder, metadata.Folder(c.cfg.FolderPrefix, contributor.Name))
	params.Set(simpleupload.ParamTags, metadata.Tag(contributor.Name))
	params.Set(simpleupload.ParamUploadPreset, c.cfg.UploadPreset)
	return params, nil
}

func (c *Client) validateFile(f simpleupload.File) error {
	if f.Body == nil {
		return &simpleupload.ValidationError{Field: fmt.Sprintf("file %q", f.Name), Reason: "has no content"}
	}
	if f.Size > c.cfg.MaxFileSize() {
		return &simpleupload.ValidationError{
			Field:  fmt.Sprintf("file %q", f.Name),
			Reason: fmt.Sprintf("exceeds the %dMB limit", c.cfg.MaxFileSizeMB),
		}
	}
	return nil
}

// withTimeout bounds one network call by the configured request timeout.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

func (c *Client) toResult(resp *simpleupload.StoreResponse, params signing.Params) *simpleupload.UploadResult {
	result := &simpleupload.UploadResult{
		URL:          resp.SecureURL,
		ResourceID:   resp.PublicID,
		ResourceKind: resp.ResourceType,
		Folder:       resp.AssetFolder,
		Tags:         resp.Tags,
		Bytes:        resp.Bytes,
	}
	if result.URL == "" {
		result.URL = resp.URL
	}

	if resp.Context != nil && len(resp.Context.Custom) > 0 {
		result.Metadata = resp.Context.Custom
		return result
	}

	// the store did not reflect the attributes; fall back to what was sent
	encoded := params[simpleupload.ParamContext]
	decoded, err := c.codec.Decode(encoded)
	if err != nil {
		c.logger.Warn("Showing undecoded metadata", "error", err)
		result.Metadata = map[string]string{simpleupload.ParamContext: encoded}
		return result
	}
	result.Metadata = decoded
	return result
}

func since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
