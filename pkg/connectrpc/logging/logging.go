// Package logging logs completed Connect RPCs together with the caller identity.
//
// Place the interceptor after jwtauth so the verified identity is in the context.
package logging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/deepworx/go-auth0/pkg/ctxutil"
)

// Option configures the interceptor.
type Option func(*interceptor)

// WithLogger sets the logger. Defaults to slog.Default() at call time.
func WithLogger(l *slog.Logger) Option {
	return func(i *interceptor) {
		i.logger = l
	}
}

// NewInterceptor creates an interceptor that logs each handled RPC.
// Successful calls are logged at Info level, failures at Warn level.
func NewInterceptor(opts ...Option) connect.Interceptor {
	i := &interceptor{}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type interceptor struct {
	logger *slog.Logger
}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		i.log(ctx, req.Spec().Procedure, time.Since(start), err)
		return resp, err
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		i.log(ctx, conn.Spec().Procedure, time.Since(start), err)
		return err
	}
}

func (i *interceptor) log(ctx context.Context, procedure string, elapsed time.Duration, err error) {
	logger := i.logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("procedure", procedure),
		slog.String("status", statusOf(err)),
		slog.Duration("duration", elapsed),
	}
	if reqID, ok := ctxutil.RequestID(ctx); ok {
		attrs = append(attrs, slog.String("request_id", reqID))
	}
	if id, ok := ctxutil.GetIdentity(ctx); ok {
		attrs = append(attrs,
			slog.String("subject", id.Subject),
			slog.String("kid", id.KeyID),
		)
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		logger.LogAttrs(ctx, slog.LevelWarn, "rpc failed", attrs...)
		return
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "rpc completed", attrs...)
}

func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Code().String()
	}
	return "unknown"
}
