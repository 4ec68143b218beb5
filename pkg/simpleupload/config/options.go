package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// WithEnv overrides settings from process environment variables (see the env tags on Config).
// Unset variables leave the current value in place.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("%w: reading environment: %v", simpleupload.ErrConfiguration, err)
		}
		return nil
	}
}

// WithDotEnv loads the given files into the process environment before WithEnv runs.
// Missing files are skipped; variables already set in the environment win.
func WithDotEnv(files ...string) Option {
	return func(c *Config) error {
		for _, f := range files {
			_ = godotenv.Load(f)
		}
		return nil
	}
}

// WithStore sets the object store account.
func WithStore(identity, publicKey, uploadPreset string) Option {
	return func(c *Config) error {
		c.Identity = identity
		c.PublicKey = publicKey
		c.UploadPreset = uploadPreset
		return nil
	}
}

// WithSecret sets the signing secret.
func WithSecret(secret string) Option {
	return func(c *Config) error {
		c.Secret = secret
		return nil
	}
}

// WithEndpoints sets the store and authorizer URLs.
func WithEndpoints(storeURL, authorizerURL string) Option {
	return func(c *Config) error {
		if storeURL != "" {
			c.StoreURL = storeURL
		}
		if authorizerURL != "" {
			c.AuthorizerURL = authorizerURL
		}
		return nil
	}
}

// WithMetadataEncoding selects the metadata codec by name.
func WithMetadataEncoding(name string) Option {
	return func(c *Config) error {
		c.MetadataEncoding = name
		return nil
	}
}

// WithFolderPrefix sets the folder prefix for contributor folders.
func WithFolderPrefix(prefix string) Option {
	return func(c *Config) error {
		c.FolderPrefix = prefix
		return nil
	}
}

// WithMaxFileSizeMB sets the payload limit.
func WithMaxFileSizeMB(mb int64) Option {
	return func(c *Config) error {
		c.MaxFileSizeMB = mb
		return nil
	}
}

// WithRequestTimeout sets the timeout applied to each network call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.RequestTimeout = d
		return nil
	}
}
