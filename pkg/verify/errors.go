// Package verify checks compact RS*/PS* signed JWTs against keys published at an
// authority's JWKS endpoint and validates their registered claims.
package verify

import "errors"

// Outcome errors. Every error returned by Verifier.Verify matches exactly one of
// these, or one of the jwks fetch errors (jwks.ErrTransport, jwks.ErrMalformedResponse).
var (
	// ErrMalformedToken is returned when the token header cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingKeyID is returned when the header carries no "kid", or no key
	// with that ID exists even after the key set was refreshed.
	ErrMissingKeyID = errors.New("missing key id")

	// ErrInvalidKeyMaterial is returned when the matching key cannot be used for verification.
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrTokenInvalid is returned when the signature or a claim check fails.
	// It is always accompanied by one of the reason errors below.
	ErrTokenInvalid = errors.New("token invalid")
)

// Reasons carried alongside ErrTokenInvalid.
var (
	ErrAlgorithmNotAllowed = errors.New("algorithm not allowed")
	ErrSignature           = errors.New("signature verification failed")
	ErrExpired             = errors.New("token expired")
	ErrNotYetValid         = errors.New("token not yet valid")
	ErrInvalidAudience     = errors.New("invalid audience")
	ErrInvalidIssuer       = errors.New("invalid issuer")
	ErrMissingClaim        = errors.New("missing required claim")
	ErrInvalidClaim        = errors.New("invalid claim")
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid policy")
