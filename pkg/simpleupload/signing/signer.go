package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"time"

	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// Digest names a signature hash.
type Digest string

const (
	DigestSHA1   Digest = "sha1"
	DigestSHA256 Digest = "sha256"
)

// Signer issues and verifies signatures of the form HEX(HASH(canonical + secret)).
// A Signer holds no mutable state and is safe for concurrent use.
type Signer struct {
	secretKey []byte
	digest    Digest
	maxAge    time.Duration
	now       func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		digest: DigestSHA1,
		maxAge: time.Hour,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsEnabled returns true if a secret key is configured
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// Authorize stamps params with the current time and signs them.
// params is not modified.
func (s *Signer) Authorize(params Params) (simpleupload.AuthorizationToken, error) {
	if !s.IsEnabled() {
		return simpleupload.AuthorizationToken{}, ErrNoSecretKey
	}

	timestamp := s.now().Unix()
	signed := params.Clone()
	signed.Set(simpleupload.ParamTimestamp, strconv.FormatInt(timestamp, 10))

	signature, err := s.Sign(signed)
	if err != nil {
		return simpleupload.AuthorizationToken{}, err
	}

	return simpleupload.AuthorizationToken{Signature: signature, Timestamp: timestamp}, nil
}

// Sign returns the signature of params exactly as given
func (s *Signer) Sign(params Params) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNoSecretKey
	}
	return s.generateSignature(params.Canonical()), nil
}

// Verify checks that signature matches params and that the signed timestamp is fresh
func (s *Signer) Verify(params Params, signature string) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}
	if signature == "" {
		return ErrMissingSignature
	}

	timestamp, err := params.Timestamp()
	if err != nil {
		return err
	}
	if s.maxAge > 0 {
		age := s.now().Sub(time.Unix(timestamp, 0))
		if age > s.maxAge {
			return fmt.Errorf("%w: timestamp %d is older than %s", ErrExpired, timestamp, s.maxAge)
		}
		// the window extends maxAge on both sides of now
		if age < -s.maxAge {
			return fmt.Errorf("%w: timestamp %d is more than %s ahead", ErrExpired, timestamp, s.maxAge)
		}
	}

	expected := s.generateSignature(params.Canonical())

	// Compare signatures using constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("%w %s. String to sign - '%s'", ErrInvalidSignature, signature, params.Canonical())
	}

	return nil
}

func (s *Signer) generateSignature(payload string) string {
	var h hash.Hash
	switch s.digest {
	case DigestSHA256:
		h = sha256.New()
	default:
		h = sha1.New()
	}
	h.Write([]byte(payload))
	h.Write(s.secretKey)
	return hex.EncodeToString(h.Sum(nil))
}
