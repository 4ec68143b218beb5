package simpleupload

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every failure surfaced by this module matches at least one of these with errors.Is.
// An AuthorizerError always matches ErrAuthorization and may also match ErrConfiguration or
// ErrMethodNotAllowed, depending on what the authorizer reported.
var (
	// ErrConfiguration indicates a required setting is missing or invalid
	ErrConfiguration = errors.New("configuration error")

	// ErrMethodNotAllowed indicates the authorizer was invoked with a verb other than POST
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrAuthorization indicates the authorizer was unreachable or refused to sign
	ErrAuthorization = errors.New("authorization failed")

	// ErrUpload indicates the object store rejected the submission
	ErrUpload = errors.New("upload failed")

	// ErrValidation indicates a caller-side constraint was violated before any network call
	ErrValidation = errors.New("validation failed")
)

// ConfigError names the setting that is missing for a given operation.
type ConfigError struct {
	Op    string
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s is required for %s", ErrConfiguration, e.Field, e.Op)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// ValidationError describes a rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// AuthorizerError is returned when the authorization endpoint does not answer with a signature.
// StatusCode is zero when the endpoint could not be reached at all.
type AuthorizerError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *AuthorizerError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", ErrAuthorization, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrAuthorization, e.Err)
	default:
		return fmt.Sprintf("%s: %s", ErrAuthorization, e.Message)
	}
}

func (e *AuthorizerError) Unwrap() error {
	return e.Err
}

// Is reports ErrAuthorization for every AuthorizerError. It also reports ErrConfiguration when the
// authorizer told us its own configuration is incomplete, and ErrMethodNotAllowed when it refused
// the verb.
func (e *AuthorizerError) Is(target error) bool {
	switch target {
	case ErrAuthorization:
		return true
	case ErrConfiguration:
		return e.Code == CodeConfiguration
	case ErrMethodNotAllowed:
		return e.Code == CodeMethodNotAllowed || e.StatusCode == http.StatusMethodNotAllowed
	}
	return false
}

// StoreError carries the object store's rejection verbatim.
type StoreError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: store responded %d: %s", ErrUpload, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %v", ErrUpload, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrUpload
}

// FileError attributes a failure to one file of a batch.
type FileError struct {
	Index int
	Name  string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Error codes used in JSON error bodies.
const (
	CodeConfiguration    = "configuration_error"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInvalidRequest   = "invalid_request"
	CodeUnauthorized     = "unauthorized"
)
