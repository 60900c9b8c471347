package shutdown

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// reset clears the registry. Shutdown state is global, so tests here run sequentially.
func reset(t *testing.T) {
	t.Helper()
	mu.Lock()
	handlers = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		handlers = nil
		mu.Unlock()
	})
}

// captureLogs routes the default logger into a buffer at debug level.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestShutdown_Order(t *testing.T) {
	reset(t)

	// Registration order mirrors serve: telemetry, background refresh, then http.
	var order []string
	for _, name := range []string{"telemetry", "background", "http"} {
		Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := "http,background,telemetry"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestShutdown_Errors(t *testing.T) {
	errDrain := errors.New("connections still open")
	errFlush := errors.New("exporter unreachable")

	tests := []struct {
		name      string
		results   map[string]error
		wantNames []string
		wantErrs  []error
	}{
		{
			name:    "all succeed",
			results: map[string]error{"http": nil, "telemetry": nil},
		},
		{
			name:      "one fails",
			results:   map[string]error{"http": errDrain, "telemetry": nil},
			wantNames: []string{"shutdown http"},
			wantErrs:  []error{errDrain},
		},
		{
			name:      "failures are joined",
			results:   map[string]error{"http": errDrain, "telemetry": errFlush},
			wantNames: []string{"shutdown http", "shutdown telemetry"},
			wantErrs:  []error{errDrain, errFlush},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset(t)

			ran := 0
			for name, result := range tt.results {
				Register(name, func(context.Context) error {
					ran++
					return result
				})
			}

			err := Shutdown(context.Background())

			if ran != len(tt.results) {
				t.Errorf("handlers run = %d, want %d", ran, len(tt.results))
			}
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("Shutdown() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Shutdown() error = nil, want joined error")
			}
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("Shutdown() error = %v, want it to wrap %v", err, want)
				}
			}
			for _, name := range tt.wantNames {
				if !strings.Contains(err.Error(), name) {
					t.Errorf("Shutdown() error = %q, want it to contain %q", err, name)
				}
			}
		})
	}
}

func TestShutdown_LogsEachHandler(t *testing.T) {
	reset(t)
	logs := captureLogs(t)

	Register("telemetry", func(context.Context) error { return nil })
	Register("http", func(context.Context) error { return errors.New("boom") })

	_ = Shutdown(context.Background())

	out := logs.String()
	for _, want := range []string{
		"handler=http", "ok=false",
		"handler=telemetry", "ok=true",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q:\n%s", want, out)
		}
	}
}

func TestShutdown_RunsOnce(t *testing.T) {
	reset(t)

	calls := 0
	Register("http", func(context.Context) error {
		calls++
		return nil
	})

	_ = Shutdown(context.Background())
	_ = Shutdown(context.Background())

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestShutdown_PassesContext(t *testing.T) {
	reset(t)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "flush")

	var got any
	Register("telemetry", func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})
	_ = Shutdown(ctx)

	if got != "flush" {
		t.Errorf("handler context value = %v, want flush", got)
	}
}

func TestWaitForSignalWithTimeout(t *testing.T) {
	reset(t)
	logs := captureLogs(t)

	const timeout = 200 * time.Millisecond
	var (
		ctxErr   error
		deadline time.Time
		ok       bool
	)
	Register("http", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		deadline, ok = ctx.Deadline()
		return nil
	})

	// A cancelled parent stands in for SIGTERM.
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := WaitForSignalWithTimeout(parent, timeout); err != nil {
		t.Fatalf("WaitForSignalWithTimeout() error = %v", err)
	}

	if ctxErr != nil {
		t.Errorf("handler context already done: %v", ctxErr)
	}
	if !ok {
		t.Fatal("handler context has no deadline")
	}
	if deadline.Before(start) || deadline.After(start.Add(timeout+50*time.Millisecond)) {
		t.Errorf("deadline %v not within %v of %v", deadline, timeout, start)
	}
	if !strings.Contains(logs.String(), "shutting down") {
		t.Errorf("logs missing shutdown notice:\n%s", logs)
	}
}

func TestWaitForSignal_DefaultTimeout(t *testing.T) {
	reset(t)

	var remaining time.Duration
	Register("http", func(ctx context.Context) error {
		if d, ok := ctx.Deadline(); ok {
			remaining = time.Until(d)
		}
		return nil
	})

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	_ = WaitForSignal(parent)

	if remaining <= DefaultShutdownTimeout-time.Second || remaining > DefaultShutdownTimeout {
		t.Errorf("remaining = %v, want close to %v", remaining, DefaultShutdownTimeout)
	}
}
