// Package deadline bounds how long a Connect handler may run.
//
// Place it before jwtauth: token verification, including a key set refresh
// after an unknown kid, then runs under the same deadline as the handler.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
)

// ErrInvalidConfig is returned by NewInterceptor for unusable timeouts.
var ErrInvalidConfig = errors.New("deadline: invalid config")

// Config holds configuration for the deadline interceptor.
type Config struct {
	// DefaultTimeout is applied when the incoming context has no deadline.
	// Must be positive.
	DefaultTimeout time.Duration `koanf:"default_timeout"`

	// MaxTimeout caps deadlines set by clients. Zero disables the cap.
	// When set it must be at least DefaultTimeout.
	MaxTimeout time.Duration `koanf:"max_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     120 * time.Second,
	}
}

// Validate checks the timeouts.
func (c Config) Validate() error {
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("%w: default_timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxTimeout < 0 || (c.MaxTimeout > 0 && c.MaxTimeout < c.DefaultTimeout) {
		return fmt.Errorf("%w: max_timeout must be zero or at least default_timeout", ErrInvalidConfig)
	}
	return nil
}

// NewInterceptor creates an interceptor that applies DefaultTimeout to handler
// contexts without a deadline and caps existing deadlines at MaxTimeout.
func NewInterceptor(cfg Config) (connect.Interceptor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &interceptor{
		defaultTimeout: cfg.DefaultTimeout,
		maxTimeout:     cfg.MaxTimeout,
	}, nil
}

type interceptor struct {
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		ctx, cancel := i.bound(ctx)
		defer cancel()
		return next(ctx, req)
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, cancel := i.bound(ctx)
		defer cancel()
		return next(ctx, conn)
	}
}

func (i *interceptor) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithTimeout(ctx, i.defaultTimeout)
	}
	if i.maxTimeout == 0 {
		return ctx, func() {}
	}
	if limit := time.Now().Add(i.maxTimeout); deadline.After(limit) {
		return context.WithDeadline(ctx, limit)
	}
	return ctx, func() {}
}
