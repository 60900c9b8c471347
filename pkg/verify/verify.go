package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v3/jws"
	"go.opentelemetry.io/otel/attribute"

	"github.com/deepworx/go-auth0/pkg/jwks"
	"github.com/deepworx/go-auth0/pkg/tracing"
)

// Verifier checks tokens against the key set published by an authority.
// It holds no key set of its own: callers pass the set returned by the previous
// call back in. A Verifier is safe for concurrent use.
type Verifier struct {
	resolver *jwks.Resolver
	now      func() time.Time
}

// Option configures a Verifier.
type Option func(*verifierOptions)

type verifierOptions struct {
	fetcher jwks.KeySetFetcher
	client  *http.Client
	now     func() time.Time
}

// WithFetcher sets the key set fetcher. It takes precedence over WithHTTPClient.
func WithFetcher(f jwks.KeySetFetcher) Option {
	return func(o *verifierOptions) {
		o.fetcher = f
	}
}

// WithHTTPClient sets the HTTP client used by the default fetcher.
func WithHTTPClient(c *http.Client) Option {
	return func(o *verifierOptions) {
		o.client = c
	}
}

// WithClock sets the time source used for "exp" and "nbf" checks.
func WithClock(now func() time.Time) Option {
	return func(o *verifierOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a Verifier.
func New(opts ...Option) *Verifier {
	o := verifierOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetcher == nil {
		o.fetcher = jwks.NewFetcher(jwks.WithHTTPClient(o.client))
	}
	return &Verifier{
		resolver: jwks.NewResolver(o.fetcher),
		now:      o.now,
	}
}

// Verify checks the signature and claims of a compact serialized token.
//
// The key is looked up in known by the token's "kid". When known is nil, or does not
// contain the kid, the key set at authority's well-known JWKS URL is fetched; at most
// one refresh happens per call.
//
// Verify returns the key set it used so the caller can pass it to the next call.
// The set is returned on verification failures too, so a refresh is not lost
// because the token itself was bad. It is the zero KeySet only when no set was
// known and none could be fetched.
func (v *Verifier) Verify(ctx context.Context, token, authority string, policy Policy, known *jwks.KeySet) (*TokenData, jwks.KeySet, error) {
	var (
		data *TokenData
		used jwks.KeySet
	)
	if known != nil {
		used = *known
	}

	err := tracing.WithSpan(ctx, "verify.token", func(ctx context.Context) error {
		var err error
		data, used, err = v.verify(ctx, token, authority, policy, known)
		return err
	}, attribute.String("auth.authority", authority))

	recordResult(ctx, err)
	if err != nil {
		slog.DebugContext(ctx, "token rejected",
			slog.String("result", Result(err)),
			slog.String("error", err.Error()),
		)
		return nil, used, err
	}
	return data, used, nil
}

func (v *Verifier) verify(ctx context.Context, token, authority string, policy Policy, known *jwks.KeySet) (*TokenData, jwks.KeySet, error) {
	var current jwks.KeySet
	if known != nil {
		current = *known
	}

	header, err := ParseHeader(token)
	if err != nil {
		return nil, current, err
	}
	tracing.Annotate(ctx,
		attribute.String("jwt.alg", header.Algorithm),
		attribute.String("jwt.kid", header.KeyID),
	)

	if header.KeyID == "" {
		return nil, current, fmt.Errorf("verify token: %w: header has no kid", ErrMissingKeyID)
	}

	rec, set, err := v.resolver.Resolve(ctx, header.KeyID, known, jwks.WellKnownURL(authority))
	if !set.IsZero() {
		current = set
	}
	if err != nil {
		if errors.Is(err, jwks.ErrKeyNotFound) {
			return nil, current, fmt.Errorf("verify token: %w: %w", ErrMissingKeyID, err)
		}
		return nil, current, fmt.Errorf("verify token: %w", err)
	}

	key, err := jwks.BuildKey(rec)
	if err != nil {
		return nil, current, fmt.Errorf("verify token: %w: %w", ErrInvalidKeyMaterial, err)
	}

	alg, ok := policy.allows(header.Algorithm)
	if !ok {
		return nil, current, fmt.Errorf("verify token: %w: %w: %q", ErrTokenInvalid, ErrAlgorithmNotAllowed, header.Algorithm)
	}

	payload, err := jws.Verify([]byte(token), jws.WithKey(alg, key))
	if err != nil {
		return nil, current, fmt.Errorf("verify token: %w: %w: %w", ErrTokenInvalid, ErrSignature, err)
	}

	claims, err := decodeClaims(payload)
	if err != nil {
		return nil, current, fmt.Errorf("verify token: %w: %w: %w", ErrTokenInvalid, ErrInvalidClaim, err)
	}

	if err := policy.check(payload, v.now); err != nil {
		return nil, current, fmt.Errorf("verify token: %w", err)
	}

	return &TokenData{Header: header, Claims: claims}, current, nil
}
