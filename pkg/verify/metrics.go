package verify

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/deepworx/go-auth0/pkg/jwks"
)

const meterName = "github.com/deepworx/go-auth0/pkg/verify"

var resultCounter = sync.OnceValue(func() metric.Int64Counter {
	c, err := otel.Meter(meterName).Int64Counter(
		"verify.results",
		metric.WithDescription("Number of token verifications by result"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("verify.results")
	}
	return c
})

func recordResult(ctx context.Context, err error) {
	resultCounter().Add(ctx, 1, metric.WithAttributes(attribute.String("result", Result(err))))
}

// Result names the stage at which a verification error was produced,
// or "ok" for a nil error.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrMissingKeyID):
		return "missing_kid"
	case errors.Is(err, ErrInvalidKeyMaterial):
		return "invalid_key"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, jwks.ErrTransport):
		return "transport"
	case errors.Is(err, jwks.ErrMalformedResponse):
		return "malformed_response"
	default:
		return "error"
	}
}
