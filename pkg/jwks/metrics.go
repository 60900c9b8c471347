package jwks

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/deepworx/go-auth0/pkg/jwks"

var fetchCounter = sync.OnceValue(func() metric.Int64Counter {
	c, err := otel.Meter(meterName).Int64Counter(
		"jwks.fetches",
		metric.WithDescription("Number of JWKS fetches by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("jwks.fetches")
	}
	return c
})

func recordFetch(ctx context.Context, err error) {
	fetchCounter().Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", fetchOutcome(err))))
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "error"
	}
}
