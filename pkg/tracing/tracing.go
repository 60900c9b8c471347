// Package tracing provides utility functions for manual span creation.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/deepworx/go-auth0"

// WithSpan executes fn within a new span. Errors are automatically recorded.
func WithSpan(ctx context.Context, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	_, err := WithSpanResult(ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, attrs...)
	return err
}

// WithSpanResult executes fn within a new span and returns the result.
// Errors are automatically recorded on the span.
func WithSpanResult[T any](
	ctx context.Context,
	name string,
	fn func(context.Context) (T, error),
	attrs ...attribute.KeyValue,
) (T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	result, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// Annotate adds attributes to the span carried by ctx, if any.
// Useful for values that are only known part way through a span.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
