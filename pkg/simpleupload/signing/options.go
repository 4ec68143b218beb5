package signing

import "time"

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret appended to the canonical string before hashing
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithDigest selects the hash used for signatures. Default is DigestSHA1, which is what the
// object store expects unless told otherwise.
func WithDigest(d Digest) Option {
	return func(s *Signer) {
		s.digest = d
	}
}

// WithMaxAge sets how old a signed timestamp may be when verified. Default is 1 hour.
func WithMaxAge(d time.Duration) Option {
	return func(s *Signer) {
		s.maxAge = d
	}
}

// WithClock overrides the time source used for issuing and verifying timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
