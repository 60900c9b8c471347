// Package ctxutil provides utility functions for storing and retrieving
// request-scoped values in context.Context.
package ctxutil

import (
	"context"
	"slices"
)

// ctxKey is an unexported type for context keys to prevent collisions.
type ctxKey int

const (
	requestIDKey ctxKey = iota
	identityKey
)

// Identity is the caller identity established from a verified access token.
type Identity struct {
	// Subject is the "sub" claim, e.g. "auth0|5f7c8ec7c33c6c004bbafe82" or "<client_id>@clients".
	Subject string

	Issuer   string
	Audience []string

	// Scopes are the space separated values of the "scope" claim.
	Scopes []string

	// KeyID is the "kid" of the key that verified the token.
	KeyID string

	// Claims is the full verified payload.
	Claims map[string]any
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID from the context.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// WithIdentity returns a new context with the caller identity set.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the caller identity from the context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Subject returns the subject of the caller identity.
func Subject(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	return id.Subject, true
}

// Scopes returns the scopes granted to the caller.
func Scopes(ctx context.Context) ([]string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return nil, false
	}
	return id.Scopes, true
}

// HasScope reports whether the caller was granted scope.
func HasScope(ctx context.Context, scope string) bool {
	scopes, _ := Scopes(ctx)
	return slices.Contains(scopes, scope)
}
