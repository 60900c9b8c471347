// Package interceptor assembles the interceptor chain for authenticated Connect services.
package interceptor

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"connectrpc.com/validate"

	"github.com/deepworx/go-auth0/pkg/connectrpc/deadline"
	rpcerrors "github.com/deepworx/go-auth0/pkg/connectrpc/errors"
	"github.com/deepworx/go-auth0/pkg/connectrpc/jwtauth"
	"github.com/deepworx/go-auth0/pkg/connectrpc/logging"
	"github.com/deepworx/go-auth0/pkg/connectrpc/recovery"
	"github.com/deepworx/go-auth0/pkg/connectrpc/requestid"
)

// ErrAuthenticatorRequired is returned by Build without an authenticator.
var ErrAuthenticatorRequired = errors.New("interceptor: authenticator is required")

// Config configures the chain.
type Config struct {
	Deadline  deadline.Config  `koanf:"deadline"`
	RequestID requestid.Config `koanf:"request_id"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Deadline:  deadline.DefaultConfig(),
		RequestID: requestid.DefaultConfig(),
	}
}

// Build returns the chain for services that require a verified caller, in order:
// recovery, deadline, requestid, otel, jwtauth, logging, validate, errors.
func Build(cfg Config, auth *jwtauth.Authenticator) ([]connect.Interceptor, error) {
	if auth == nil {
		return nil, ErrAuthenticatorRequired
	}

	deadlineInterceptor, err := deadline.NewInterceptor(cfg.Deadline)
	if err != nil {
		return nil, fmt.Errorf("build interceptors: %w", err)
	}

	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create otel interceptor: %w", err)
	}

	return []connect.Interceptor{
		// Outermost so panics anywhere below are recovered.
		recovery.NewInterceptor(),
		deadlineInterceptor,
		requestid.NewInterceptor(cfg.RequestID),
		otelInterceptor,
		jwtauth.NewInterceptor(auth),
		// After jwtauth so the identity is in the logged context.
		logging.NewInterceptor(),
		// Only callers that passed authentication get their payloads checked.
		validate.NewInterceptor(),
		rpcerrors.NewInterceptor(),
	}, nil
}
