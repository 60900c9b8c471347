// Package recovery turns handler panics into CodeInternal errors.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/deepworx/go-auth0/pkg/ctxutil"
)

const (
	meterName = "github.com/deepworx/go-auth0/pkg/connectrpc/recovery"
	stackSize = 4096
)

// ErrInternal is the error returned to clients after a panic.
var ErrInternal = errors.New("internal error")

var panicCounter = sync.OnceValue(func() metric.Int64Counter {
	c, err := otel.Meter(meterName).Int64Counter(
		"rpc.server.panics",
		metric.WithDescription("Number of recovered handler panics"),
		metric.WithUnit("{panic}"),
	)
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("rpc.server.panics")
	}
	return c
})

// Option configures the interceptor.
type Option func(*interceptor)

// WithLogger sets the logger. Defaults to slog.Default() at call time.
func WithLogger(l *slog.Logger) Option {
	return func(i *interceptor) {
		i.logger = l
	}
}

// NewInterceptor creates an interceptor that recovers handler panics, logs them
// with a stack trace, counts them, and returns CodeInternal to the client.
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
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = i.recovered(ctx, req.Spec().Procedure, r)
			}
		}()
		return next(ctx, req)
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = i.recovered(ctx, conn.Spec().Procedure, r)
			}
		}()
		return next(ctx, conn)
	}
}

func (i *interceptor) recovered(ctx context.Context, procedure string, r any) *connect.Error {
	stack := make([]byte, stackSize)
	stack = stack[:runtime.Stack(stack, false)]

	attrs := []slog.Attr{
		slog.String("procedure", procedure),
		slog.Any("panic", r),
		slog.String("stack", string(stack)),
	}
	if reqID, ok := ctxutil.RequestID(ctx); ok {
		attrs = append(attrs, slog.String("request_id", reqID))
	}
	if sub, ok := ctxutil.Subject(ctx); ok {
		attrs = append(attrs, slog.String("subject", sub))
	}

	logger := i.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelError, "panic recovered", attrs...)
	panicCounter().Add(ctx, 1, metric.WithAttributes(attribute.String("rpc.method", procedure)))

	return connect.NewError(connect.CodeInternal, ErrInternal)
}
