// Package jwks fetches JSON Web Key Sets, resolves keys by key ID, and turns
// published keys into verification key material.
//
// Caching is left to the caller: a KeySet returned by Fetch or Resolve can be
// handed back into the next Resolve call to avoid a network round trip.
package jwks

import "errors"

// Sentinel errors for key set retrieval and key resolution.
var (
	// ErrTransport is returned when the key set request did not complete
	// or the endpoint answered with a non-200 status.
	ErrTransport = errors.New("jwks transport failure")

	// ErrMalformedResponse is returned when the response body is not a key set document.
	ErrMalformedResponse = errors.New("malformed jwks response")

	// ErrKeyNotFound is returned when no key matches the requested key ID,
	// even after refreshing the key set.
	ErrKeyNotFound = errors.New("key id not found in jwks")

	// ErrInvalidKey is returned when a key record cannot be turned into
	// verification key material, including unsupported key types.
	ErrInvalidKey = errors.New("invalid key material")
)
