package recovery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"connectrpc.com/connect"

	"github.com/deepworx/go-auth0/pkg/ctxutil"
)

type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) all() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records
}

func TestInterceptor_WrapUnary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		panicValue any
		wantPanic  string
	}{
		{name: "string", panicValue: "key set is nil", wantPanic: "key set is nil"},
		{name: "error", panicValue: errors.New("nil claims"), wantPanic: "nil claims"},
		{name: "int", panicValue: 42, wantPanic: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &recordHandler{}
			wrapped := NewInterceptor(WithLogger(slog.New(h))).WrapUnary(
				func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
					panic(tt.panicValue)
				})

			ctx := ctxutil.WithRequestID(context.Background(), "req-1")
			ctx = ctxutil.WithIdentity(ctx, ctxutil.Identity{Subject: "user-1"})
			_, err := wrapped(ctx, &mockRequest{procedure: "/auth0.v1.TokenService/Introspect"})

			var connectErr *connect.Error
			if !errors.As(err, &connectErr) {
				t.Fatalf("expected *connect.Error, got %T", err)
			}
			if connectErr.Code() != connect.CodeInternal {
				t.Errorf("code = %v, want %v", connectErr.Code(), connect.CodeInternal)
			}
			if !errors.Is(err, ErrInternal) {
				t.Errorf("error = %v, want ErrInternal", err)
			}

			records := h.all()
			if len(records) != 1 {
				t.Fatalf("expected 1 log record, got %d", len(records))
			}
			if records[0].Level != slog.LevelError {
				t.Errorf("level = %v, want %v", records[0].Level, slog.LevelError)
			}
			attrs := extractAttrs(records[0])
			if attrs["panic"] != tt.wantPanic {
				t.Errorf("panic = %q, want %q", attrs["panic"], tt.wantPanic)
			}
			if attrs["request_id"] != "req-1" || attrs["subject"] != "user-1" {
				t.Errorf("request_id = %q, subject = %q", attrs["request_id"], attrs["subject"])
			}
			if !strings.Contains(attrs["stack"], "goroutine") {
				t.Error("stack attribute should contain a goroutine trace")
			}
		})
	}
}

func TestInterceptor_WrapUnary_NoPanic(t *testing.T) {
	t.Parallel()

	h := &recordHandler{}
	wantErr := errors.New("handler error")
	wrapped := NewInterceptor(WithLogger(slog.New(h))).WrapUnary(
		func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
			return nil, wantErr
		})

	if _, err := wrapped(context.Background(), &mockRequest{procedure: "/x/Y"}); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
	if n := len(h.all()); n != 0 {
		t.Errorf("expected no log records, got %d", n)
	}
}

func TestInterceptor_WrapStreamingHandler(t *testing.T) {
	t.Parallel()

	h := &recordHandler{}
	wrapped := NewInterceptor(WithLogger(slog.New(h))).WrapStreamingHandler(
		func(context.Context, connect.StreamingHandlerConn) error {
			panic("stream panic")
		})

	err := wrapped(context.Background(), &mockStreamingConn{procedure: "/test.Service/Stream"})
	if connect.CodeOf(err) != connect.CodeInternal {
		t.Errorf("code = %v, want %v", connect.CodeOf(err), connect.CodeInternal)
	}
	if n := len(h.all()); n != 1 {
		t.Errorf("expected 1 log record, got %d", n)
	}
}

func extractAttrs(r slog.Record) map[string]string {
	attrs := make(map[string]string)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	return attrs
}

type mockRequest struct {
	connect.AnyRequest
	procedure string
}

func (r *mockRequest) Spec() connect.Spec {
	return connect.Spec{Procedure: r.procedure}
}

type mockStreamingConn struct {
	connect.StreamingHandlerConn
	procedure string
}

func (c *mockStreamingConn) Spec() connect.Spec {
	return connect.Spec{Procedure: c.procedure}
}
