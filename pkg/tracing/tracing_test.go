package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording tracer provider for the duration of the test.
// Tests using it cannot run in parallel because the provider is global.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func onlySpan(t *testing.T, rec *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	return spans[0]
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestWithSpan_Outcome(t *testing.T) {
	errFetch := errors.New("jwks unreachable")

	tests := []struct {
		name       string
		fnErr      error
		wantCode   codes.Code
		wantEvents int
	}{
		{name: "success leaves status unset", fnErr: nil, wantCode: codes.Unset, wantEvents: 0},
		{name: "error marks span", fnErr: errFetch, wantCode: codes.Error, wantEvents: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordSpans(t)

			err := WithSpan(context.Background(), "jwks.fetch", func(context.Context) error {
				return tt.fnErr
			}, attribute.String("jwks.url", "https://tenant.example.com/.well-known/jwks.json"))
			if !errors.Is(err, tt.fnErr) {
				t.Fatalf("WithSpan() error = %v, want %v", err, tt.fnErr)
			}

			span := onlySpan(t, rec)
			if span.Name() != "jwks.fetch" {
				t.Errorf("span name = %q, want jwks.fetch", span.Name())
			}
			if span.Status().Code != tt.wantCode {
				t.Errorf("status = %v, want %v", span.Status().Code, tt.wantCode)
			}
			if tt.fnErr != nil && span.Status().Description != tt.fnErr.Error() {
				t.Errorf("status description = %q, want %q", span.Status().Description, tt.fnErr.Error())
			}
			if got := len(span.Events()); got != tt.wantEvents {
				t.Errorf("events = %d, want %d", got, tt.wantEvents)
			}
			if v, ok := attrValue(span, "jwks.url"); !ok || v.AsString() != "https://tenant.example.com/.well-known/jwks.json" {
				t.Errorf("jwks.url attribute = %v (present %v)", v.AsString(), ok)
			}
		})
	}
}

func TestWithSpanResult_ReturnsValueAndNestsSpans(t *testing.T) {
	rec := recordSpans(t)

	kid, err := WithSpanResult(context.Background(), "jwt.verify", func(ctx context.Context) (string, error) {
		return WithSpanResult(ctx, "jwks.resolve", func(context.Context) (string, error) {
			return "key-1", nil
		})
	})
	if err != nil {
		t.Fatalf("WithSpanResult() error = %v", err)
	}
	if kid != "key-1" {
		t.Errorf("WithSpanResult() = %q, want key-1", kid)
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	// Children end first.
	child, parent := spans[0], spans[1]
	if child.Name() != "jwks.resolve" || parent.Name() != "jwt.verify" {
		t.Fatalf("span names = %q, %q", child.Name(), parent.Name())
	}
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("jwks.resolve is not a child of jwt.verify")
	}
}

func TestWithSpanResult_ErrorKeepsZeroValue(t *testing.T) {
	rec := recordSpans(t)
	errMissing := errors.New("kid not found")

	n, err := WithSpanResult(context.Background(), "jwks.resolve", func(context.Context) (int, error) {
		return 0, errMissing
	})
	if !errors.Is(err, errMissing) {
		t.Fatalf("WithSpanResult() error = %v, want %v", err, errMissing)
	}
	if n != 0 {
		t.Errorf("WithSpanResult() = %d, want 0", n)
	}
	if got := onlySpan(t, rec).Status().Code; got != codes.Error {
		t.Errorf("status = %v, want Error", got)
	}
}

func TestAnnotate(t *testing.T) {
	rec := recordSpans(t)

	_ = WithSpan(context.Background(), "jwt.verify", func(ctx context.Context) error {
		Annotate(ctx, attribute.String("jwt.kid", "key-2"), attribute.Int("jwks.keys", 3))
		return nil
	})

	span := onlySpan(t, rec)
	if v, ok := attrValue(span, "jwt.kid"); !ok || v.AsString() != "key-2" {
		t.Errorf("jwt.kid = %q (present %v), want key-2", v.AsString(), ok)
	}
	if v, ok := attrValue(span, "jwks.keys"); !ok || v.AsInt64() != 3 {
		t.Errorf("jwks.keys = %d (present %v), want 3", v.AsInt64(), ok)
	}
}

func TestAnnotate_NoSpan(t *testing.T) {
	// A context without a span must not panic.
	Annotate(context.Background(), attribute.String("jwt.kid", "abc"))
}
