package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/metadata"
	"github.com/tendant/simple-upload/pkg/simpleupload/signing"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
// Role-specific requirements are checked by ValidateAuthorizer, ValidateClient and ValidateStore.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		StoreURL:         "https://api.cloudinary.com",
		AuthorizerURL:    "http://localhost:3000/api/sign",
		FolderPrefix:     "uploads",
		MetadataEncoding: metadata.EncodingJSON,
		SignatureDigest:  string(signing.DigestSHA1),
		MaxFileSizeMB:    20,
		RequestTimeout:   60 * time.Second,
		SignatureMaxAge:  time.Hour,
		Port:             "3000",
		Environment:      "development",
		StorageURL:       "memory://",
	}
}

// Config is the explicit configuration of every component. Identity, PublicKey and UploadPreset
// are safe to hand to clients; Secret must only ever reach the authorizer and the store.
type Config struct {
	// Object store account
	Identity     string `env:"STORE_IDENTITY,CLOUDINARY_CLOUD_NAME,NEXT_PUBLIC_CLOUDINARY_CLOUD_NAME" env-description:"object store account name"`
	PublicKey    string `env:"STORE_API_KEY,CLOUDINARY_API_KEY,NEXT_PUBLIC_CLOUDINARY_API_KEY" env-description:"public API key sent with every upload"`
	Secret       string `env:"STORE_API_SECRET,CLOUDINARY_API_SECRET" env-description:"signing secret, server side only"`
	UploadPreset string `env:"STORE_UPLOAD_PRESET,CLOUDINARY_UPLOAD_PRESET,NEXT_PUBLIC_CLOUDINARY_UPLOAD_PRESET" env-description:"upload preset applied by the store"`

	// Endpoints
	StoreURL      string `env:"STORE_URL" env-description:"object store base URL"`
	AuthorizerURL string `env:"AUTHORIZER_URL" env-description:"signing endpoint used by clients"`

	// Upload shaping
	FolderPrefix     string        `env:"UPLOAD_FOLDER_PREFIX" env-description:"folder prefix for contributor folders"`
	MetadataEncoding string        `env:"METADATA_ENCODING" env-description:"json or pipe"`
	SignatureDigest  string        `env:"SIGNATURE_DIGEST" env-description:"sha1 or sha256"`
	MaxFileSizeMB    int64         `env:"MAX_FILE_SIZE_MB" env-description:"largest accepted payload in megabytes"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" env-description:"timeout of each network call"`
	SignatureMaxAge  time.Duration `env:"SIGNATURE_MAX_AGE" env-description:"how long a signature stays valid at the store"`

	// Servers
	Port          string `env:"PORT" env-description:"listen port"`
	Environment   string `env:"ENVIRONMENT" env-description:"development, production or testing"`
	AuthJWTSecret string `env:"AUTH_JWT_SECRET" env-description:"when set, the authorizer requires an HS256 bearer token"`
	StorageURL    string `env:"STORAGE_URL" env-description:"store emulator blob storage: memory:// or s3://bucket?region=...&endpoint=..."`
	PublicURL     string `env:"PUBLIC_URL" env-description:"base URL the store emulator reports in secure_url"`
}

// Validate checks settings that are invalid for every role.
func (c *Config) Validate() error {
	if _, err := metadata.ByName(c.MetadataEncoding); err != nil {
		return fmt.Errorf("%w: %v", simpleupload.ErrConfiguration, err)
	}
	switch signing.Digest(c.SignatureDigest) {
	case signing.DigestSHA1, signing.DigestSHA256:
	default:
		return fmt.Errorf("%w: unsupported signature digest %q", simpleupload.ErrConfiguration, c.SignatureDigest)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: max file size must be positive", simpleupload.ErrConfiguration)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request timeout must not be negative", simpleupload.ErrConfiguration)
	}
	return nil
}

// ValidateAuthorizer checks what the authorizer needs to sign.
func (c *Config) ValidateAuthorizer() error {
	if c.Secret == "" {
		return &simpleupload.ConfigError{Op: "authorize", Field: "secret"}
	}
	return nil
}

// ValidateClient checks the public settings a client needs to upload.
func (c *Config) ValidateClient() error {
	required := []struct {
		field string
		value string
	}{
		{"identity", c.Identity},
		{"public key", c.PublicKey},
		{"upload preset", c.UploadPreset},
		{"store url", c.StoreURL},
		{"authorizer url", c.AuthorizerURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &simpleupload.ConfigError{Op: "upload", Field: r.field}
		}
	}
	for _, u := range []string{c.StoreURL, c.AuthorizerURL} {
		if err := checkURL(u); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStore checks what the store emulator needs to verify submissions.
func (c *Config) ValidateStore() error {
	for _, r := range []struct{ field, value string }{
		{"identity", c.Identity},
		{"public key", c.PublicKey},
		{"secret", c.Secret},
	} {
		if r.value == "" {
			return &simpleupload.ConfigError{Op: "verify", Field: r.field}
		}
	}
	return nil
}

// MaxFileSize returns the payload limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// Codec returns the configured metadata codec.
func (c *Config) Codec() metadata.Codec {
	codec, err := metadata.ByName(c.MetadataEncoding)
	if err != nil {
		return metadata.JSONCodec{}
	}
	return codec
}

// SignerOptions returns the signing options shared by the authorizer and the store.
func (c *Config) SignerOptions() []signing.Option {
	return []signing.Option{
		signing.WithSecretKey(c.Secret),
		signing.WithDigest(signing.Digest(c.SignatureDigest)),
		signing.WithMaxAge(c.SignatureMaxAge),
	}
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q: %v", simpleupload.ErrConfiguration, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url %q must be http or https", simpleupload.ErrConfiguration, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url %q has no host", simpleupload.ErrConfiguration, raw)
	}
	return nil
}
