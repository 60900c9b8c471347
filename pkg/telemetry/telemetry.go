// Package telemetry wires OpenTelemetry tracing, metrics, and logging providers.
//
// The jwks, verify, and oauth packages record spans and counters against the
// global providers; until Setup runs those are no-ops.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/deepworx/go-auth0/pkg/shutdown"
)

// ErrInvalidConfig is returned when telemetry is enabled without a service identity.
var ErrInvalidConfig = errors.New("telemetry: invalid config")

// Config holds the configuration for OpenTelemetry setup.
type Config struct {
	// Enabled turns provider installation on. Exporters are still selected
	// through OTEL_* environment variables.
	Enabled bool `koanf:"enabled"`

	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// SampleRatio is the fraction of root traces recorded, in [0, 1].
	// Child spans follow their parent's decision. Default: 1
	SampleRatio float64 `koanf:"sample_ratio"`
}

// DefaultConfig returns a disabled Config identifying the auth0ctl binary.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "auth0ctl",
		ServiceVersion: "dev",
		SampleRatio:    1,
	}
}

// Validate checks that an enabled Config names the service.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service_name is required", ErrInvalidConfig)
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("%w: service_version is required", ErrInvalidConfig)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("%w: sample_ratio %v outside [0, 1]", ErrInvalidConfig, c.SampleRatio)
	}
	return nil
}

// Setup installs the global providers and registers a shutdown handler that
// flushes them. It does nothing when cfg is disabled.
func Setup(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Enabled {
		return nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("telemetry resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tp, err := newTracerProvider(ctx, res, cfg.SampleRatio)
	if err != nil {
		return fmt.Errorf("telemetry traces: %w", err)
	}
	mp, err := newMeterProvider(ctx, res)
	if err != nil {
		return errors.Join(fmt.Errorf("telemetry metrics: %w", err), tp.Shutdown(ctx))
	}
	lp, err := newLoggerProvider(ctx, res)
	if err != nil {
		return errors.Join(fmt.Errorf("telemetry logs: %w", err), tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	shutdown.Register("telemetry", func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	})

	return nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithHost(),
		resource.WithOS(),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

func newTracerProvider(ctx context.Context, res *resource.Resource, ratio float64) (*trace.TracerProvider, error) {
	exp, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	reader, err := autoexport.NewMetricReader(ctx)
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource) (*log.LoggerProvider, error) {
	exp, err := autoexport.NewLogExporter(ctx)
	if err != nil {
		return nil, err
	}
	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exp)),
	), nil
}
