// Package simpleupload holds the shared types and error kinds of the signed-upload protocol.
//
// The protocol has two sides. A trusted authorizer (package authorizer) owns the store secret and
// signs a canonical parameter set (package signing). An untrusted client (package client) encodes
// contributor metadata (package metadata), asks the authorizer for a signature and submits the file
// together with exactly the signed parameters to the object store, which recomputes the signature.
//
// # Errors
//
// Failures are reported with five sentinel errors:
//
//	errors.Is(err, simpleupload.ErrConfiguration) // missing setting, never retried
//	errors.Is(err, simpleupload.ErrAuthorization) // authorizer unreachable or refused
//	errors.Is(err, simpleupload.ErrUpload)        // store rejected the submission
//	errors.Is(err, simpleupload.ErrValidation)    // caller input rejected before any network call
//	errors.Is(err, simpleupload.ErrMethodNotAllowed) // authorizer answered 405
//
// An AuthorizerError always matches ErrAuthorization; a missing secret on the authorizer also
// matches ErrConfiguration and a refused verb also matches ErrMethodNotAllowed.
//
// The concrete types (ConfigError, AuthorizerError, StoreError, FileError) carry the detail.
package simpleupload
