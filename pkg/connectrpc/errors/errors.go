// Package errors maps handler errors to Connect codes.
//
// Errors from the jwks, verify, and oauth packages keep their message and get
// a code that tells the client whether to retry, re-authenticate, or give up.
// Anything unrecognised becomes CodeInternal with a sanitized message.
package errors

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/deepworx/go-auth0/pkg/jwks"
	"github.com/deepworx/go-auth0/pkg/oauth"
	"github.com/deepworx/go-auth0/pkg/verify"
)

// ConnectCoder allows errors to specify their Connect code.
type ConnectCoder interface {
	ConnectCode() connect.Code
}

// NewInterceptor creates an interceptor that maps handler errors to Connect codes.
//
// Mapping priority:
//  1. context.Canceled and context.DeadlineExceeded
//  2. ConnectCoder
//  3. *connect.Error, preserved as-is
//  4. key set and token endpoint failures: CodeUnavailable
//  5. rejected or unverifiable tokens: CodeUnauthenticated
//  6. credentials refused by the token endpoint: CodePermissionDenied
//  7. anything else: CodeInternal with message "internal error"
func NewInterceptor() connect.Interceptor {
	return &interceptor{}
}

type interceptor struct{}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return resp, MapError(err)
		}
		return resp, nil
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := next(ctx, conn); err != nil {
			return MapError(err)
		}
		return nil
	}
}

// MapError converts err to a *connect.Error using the priority of NewInterceptor.
func MapError(err error) *connect.Error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	var coder ConnectCoder
	if errors.As(err, &coder) {
		return connect.NewError(coder.ConnectCode(), err)
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	if code, ok := domainCode(err); ok {
		return connect.NewError(code, err)
	}

	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

func domainCode(err error) (connect.Code, bool) {
	switch {
	case errors.Is(err, jwks.ErrTransport),
		errors.Is(err, jwks.ErrMalformedResponse),
		errors.Is(err, oauth.ErrTransport),
		errors.Is(err, oauth.ErrMalformedResponse):
		return connect.CodeUnavailable, true
	case errors.Is(err, verify.ErrMalformedToken),
		errors.Is(err, verify.ErrMissingKeyID),
		errors.Is(err, verify.ErrInvalidKeyMaterial),
		errors.Is(err, verify.ErrTokenInvalid):
		return connect.CodeUnauthenticated, true
	case errors.Is(err, oauth.ErrRejected):
		return connect.CodePermissionDenied, true
	default:
		return 0, false
	}
}
