package signing

import "errors"

// Signature errors
var (
	// ErrNoSecretKey is returned when attempting to sign or verify without a configured secret key
	ErrNoSecretKey = errors.New("signing: no secret key configured")

	// ErrMissingSignature is returned when a submission carries no signature
	ErrMissingSignature = errors.New("signing: missing signature parameter")

	// ErrMissingTimestamp is returned when the timestamp parameter is missing
	ErrMissingTimestamp = errors.New("signing: missing timestamp parameter")

	// ErrInvalidTimestamp is returned when the timestamp parameter cannot be parsed
	ErrInvalidTimestamp = errors.New("signing: invalid timestamp parameter")

	// ErrExpired is returned when the signed timestamp is outside the validity window
	ErrExpired = errors.New("signing: stale request")

	// ErrInvalidSignature is returned when the signature does not match the parameters
	ErrInvalidSignature = errors.New("signing: invalid signature")
)

// IsAuthError returns true if the error is a signature verification error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrMissingTimestamp) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidSignature)
}
