// Package oauth acquires access tokens from an Auth0 style token endpoint
// using the client credentials or resource owner password grants.
package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when the token endpoint cannot be reached
	// or answers with an unexpected status.
	ErrTransport = errors.New("token endpoint transport failure")

	// ErrMalformedResponse is returned when a successful response carries no usable token.
	ErrMalformedResponse = errors.New("malformed token response")

	// ErrRejected is returned when the token endpoint refuses the grant with an OAuth error body.
	ErrRejected = errors.New("token request rejected")

	// ErrInvalidGrantType is returned when a grant type string is not recognized.
	ErrInvalidGrantType = errors.New("invalid grant type")
)

// ResponseError is an OAuth error response ("error" and "error_description").
// It matches ErrRejected.
type ResponseError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("token endpoint returned %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

func (e *ResponseError) Unwrap() error {
	return ErrRejected
}
