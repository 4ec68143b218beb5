// Package signing implements the canonical parameter signature shared by the authorizer and the
// object store.
//
// The string to sign is every non-empty signed parameter, sorted by name and joined as
// name=value pairs with '&'. file, api_key, signature, resource_type and cloud_name are never
// signed. The signature is the lowercase hex digest of the string to sign followed by the secret:
//
//	context={"name":"Ayşe"}&folder=uploads/Ayşe&tags=Ayşe&timestamp=1700000000&upload_preset=memories
//	signature = hex(sha1(stringToSign + secret))
//
// # Basic Usage
//
// Authorizer side:
//
//	signer := signing.New(signing.WithSecretKey(secret))
//	token, err := signer.Authorize(signing.FromRequest(req))
//
// Store side:
//
//	err := signer.Verify(params, r.FormValue("signature"))
//
// Both sides must build params from byte-identical values; any difference in an included value
// changes the signature and the store rejects the upload.
package signing
