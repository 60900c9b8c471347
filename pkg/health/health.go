// Package health aggregates readiness checks behind a gRPC health endpoint.
//
// Registered checkers are probed in parallel at a fixed interval. The endpoint
// reports SERVING only while every checker passes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
)

// Checker reports whether a dependency is ready. A nil error means ready.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Config holds the probe schedule.
type Config struct {
	// Interval between check cycles.
	Interval time.Duration `koanf:"interval"`

	// Timeout for each individual check.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Aggregator probes registered checkers and publishes the combined status.
type Aggregator struct {
	cfg    Config
	static *grpchealth.StaticChecker

	mu       sync.RWMutex
	checkers map[string]Checker
	serving  bool
	failures map[string]string
}

// NewAggregator creates an Aggregator that reports NOT_SERVING until the first
// check cycle completes.
func NewAggregator(cfg Config) *Aggregator {
	static := grpchealth.NewStaticChecker()
	static.SetStatus("", grpchealth.StatusNotServing)

	return &Aggregator{
		cfg:      cfg,
		static:   static,
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker under name and returns the Aggregator for chaining.
// Panics if name is empty or already registered.
func (a *Aggregator) Register(name string, c Checker) *Aggregator {
	if name == "" {
		panic("health: name cannot be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; exists {
		panic("health: checker already registered: " + name)
	}
	a.checkers[name] = c
	return a
}

// Handler returns the path and handler for the gRPC health service.
func (a *Aggregator) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	return grpchealth.NewHandler(a.static, opts...)
}

// Run checks immediately, then once per interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.CheckNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.CheckNow(ctx)
		}
	}
}

// IsServing returns the status published by the last check cycle.
func (a *Aggregator) IsServing() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.serving
}

// Failures returns the error text of each checker that failed in the last cycle.
func (a *Aggregator) Failures() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]string, len(a.failures))
	for name, msg := range a.failures {
		out[name] = msg
	}
	return out
}

// CheckNow runs one check cycle and publishes its result.
func (a *Aggregator) CheckNow(ctx context.Context) {
	a.mu.RLock()
	checkers := make(map[string]Checker, len(a.checkers))
	for name, c := range a.checkers {
		checkers[name] = c
	}
	a.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		failMu   sync.Mutex
		failures = make(map[string]string)
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()

			if err := safeCheck(checkCtx, c); err != nil {
				failMu.Lock()
				failures[name] = err.Error()
				failMu.Unlock()
			}
		}()
	}
	wg.Wait()

	a.publish(len(failures) == 0, failures)
}

func safeCheck(ctx context.Context, c Checker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return c.Check(ctx)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return "check panicked"
}

func (a *Aggregator) publish(serving bool, failures map[string]string) {
	a.mu.Lock()
	changed := a.serving != serving
	a.serving = serving
	a.failures = failures
	a.mu.Unlock()

	if serving {
		a.static.SetStatus("", grpchealth.StatusServing)
	} else {
		a.static.SetStatus("", grpchealth.StatusNotServing)
	}

	if changed {
		slog.Info("health status changed",
			slog.Bool("serving", serving),
			slog.Any("failures", failures),
		)
	}
}
