// Package shutdown provides graceful shutdown orchestration for services.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout is the default time allowed for graceful shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// Handler is called during shutdown with the provided context.
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

var (
	mu       sync.Mutex
	handlers []entry
)

// Register adds a named shutdown handler. Handlers are called in LIFO order.
// The name only appears in logs and errors.
func Register(name string, h Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, entry{name: name, handler: h})
}

// Shutdown executes all registered handlers in LIFO order.
// Returns a combined error if any handler fails.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		e := handlers[i]
		start := time.Now()
		err := e.handler(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", e.name, err))
		}
		slog.DebugContext(ctx, "shutdown handler finished",
			slog.String("handler", e.name),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("ok", err == nil),
		)
	}
	handlers = nil
	return errors.Join(errs...)
}

// WaitForSignal blocks until SIGINT or SIGTERM is received, then calls Shutdown
// with DefaultShutdownTimeout.
func WaitForSignal(ctx context.Context) error {
	return WaitForSignalWithTimeout(ctx, DefaultShutdownTimeout)
}

// WaitForSignalWithTimeout blocks until SIGINT or SIGTERM is received or ctx is done,
// then calls Shutdown with the specified timeout for handlers to complete.
func WaitForSignalWithTimeout(ctx context.Context, timeout time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	slog.Info("shutting down", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return Shutdown(shutdownCtx)
}
