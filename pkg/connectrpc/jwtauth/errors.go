package jwtauth

import "errors"

// Errors raised before a token reaches verification.
// Verification failures carry the sentinels of package verify instead.
var (
	// ErrMissingToken means the request had no Authorization header.
	ErrMissingToken = errors.New("jwtauth: no bearer token in request")

	// ErrInvalidTokenFormat means the Authorization header is not "Bearer <token>".
	ErrInvalidTokenFormat = errors.New("jwtauth: authorization header is not a bearer token")

	// ErrJWKSFetch wraps jwks.ErrTransport or jwks.ErrMalformedResponse when the
	// authority's key set could not be loaded. Mapped to Unavailable, not Unauthenticated.
	ErrJWKSFetch = errors.New("jwtauth: key set unavailable")

	// ErrAuthorityRequired is returned by Config.Validate when Authority is empty.
	ErrAuthorityRequired = errors.New("jwtauth: authority is required")
)
