// Package jwtauth authenticates Connect RPC requests with Auth0-issued bearer tokens.
// Keys are loaded from the authority's JWKS, optionally refreshed in the background,
// and an unknown kid triggers one refresh before the token is rejected.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/deepworx/go-auth0/pkg/ctxutil"
	"github.com/deepworx/go-auth0/pkg/jwks"
	"github.com/deepworx/go-auth0/pkg/keystore"
	"github.com/deepworx/go-auth0/pkg/verify"
)

// Config holds configuration for the JWT authentication interceptor.
type Config struct {
	// Authority is the token issuer's base URL (e.g., "https://tenant.auth0.com/").
	// Keys are fetched from its /.well-known/jwks.json.
	// Required.
	Authority string

	// Policy selects the checks applied to every token.
	// Policy.Validate must succeed.
	Policy verify.Policy

	// HTTPClient is used for JWKS requests. Overrides HTTPTimeout when set.
	HTTPClient *http.Client

	// HTTPTimeout is the timeout for JWKS fetch requests.
	// Defaults to 10 seconds if zero.
	HTTPTimeout time.Duration

	// RefreshInterval enables background JWKS refresh when positive.
	// Without it keys are only refetched when a token names an unknown kid.
	RefreshInterval time.Duration
}

// Validate checks the configuration for required fields.
func (c Config) Validate() error {
	if c.Authority == "" {
		return ErrAuthorityRequired
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	return nil
}

// Authenticator validates JWT tokens and extracts the caller identity.
type Authenticator struct {
	verifier  *verify.Verifier
	store     *keystore.Store
	authority string
	policy    verify.Policy
}

// NewAuthenticator creates a new JWT authenticator with the given configuration.
// The key set is fetched once up front. The ctx controls the lifecycle of the
// background refresh goroutine when RefreshInterval is set.
// Returns error if the config is invalid or if the initial JWKS fetch fails.
func NewAuthenticator(ctx context.Context, cfg Config) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	jwksURL := jwks.WellKnownURL(cfg.Authority)
	store := keystore.New()

	if cfg.RefreshInterval > 0 {
		w, err := keystore.NewWatcher(ctx, store, jwksURL, keystore.WatchConfig{
			HTTPClient: httpClient,
			Interval:   cfg.RefreshInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("initial jwks fetch from %s: %w: %w", jwksURL, ErrJWKSFetch, err)
		}
		go w.Run(ctx)
	} else {
		set, err := jwks.NewFetcher(jwks.WithHTTPClient(httpClient)).Fetch(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("initial jwks fetch from %s: %w: %w", jwksURL, ErrJWKSFetch, err)
		}
		store.Swap(set)
	}

	return &Authenticator{
		verifier:  verify.New(verify.WithHTTPClient(httpClient)),
		store:     store,
		authority: cfg.Authority,
		policy:    cfg.Policy,
	}, nil
}

// KeySet returns the key set currently used for verification.
func (a *Authenticator) KeySet() jwks.KeySet {
	return a.store.Load()
}

// KeySetUpdated returns when the key set was last replaced.
func (a *Authenticator) KeySetUpdated() time.Time {
	return a.store.Updated()
}

// JWKSURL returns the URL keys are fetched from.
func (a *Authenticator) JWKSURL() string {
	return jwks.WellKnownURL(a.authority)
}

// Authenticate validates the JWT token and returns the caller identity.
// Token should be the raw JWT string (without "Bearer " prefix).
func (a *Authenticator) Authenticate(ctx context.Context, token string) (ctxutil.Identity, error) {
	data, err := a.store.Verify(ctx, a.verifier, token, a.authority, a.policy)
	if err != nil {
		if errors.Is(err, jwks.ErrTransport) || errors.Is(err, jwks.ErrMalformedResponse) {
			return ctxutil.Identity{}, fmt.Errorf("authenticate: %w: %w", ErrJWKSFetch, err)
		}
		return ctxutil.Identity{}, fmt.Errorf("authenticate: %w", err)
	}

	return identityFrom(data), nil
}

func identityFrom(data *verify.TokenData) ctxutil.Identity {
	return ctxutil.Identity{
		Subject:  data.Claims.Subject(),
		Issuer:   data.Claims.Issuer(),
		Audience: data.Claims.Audience(),
		Scopes:   data.Claims.Scopes(),
		KeyID:    data.Header.KeyID,
		Claims:   data.Claims,
	}
}

// NewInterceptor creates a Connect RPC interceptor that validates JWT tokens.
// It extracts the token from the Authorization header, validates it, and injects
// the identity into the request context using ctxutil.WithIdentity.
func NewInterceptor(auth *Authenticator) connect.Interceptor {
	return &interceptor{auth: auth}
}

type interceptor struct {
	auth *Authenticator
}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		ctx, err := i.authenticate(ctx, req.Header())
		if err != nil {
			return nil, err
		}

		return next(ctx, req)
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *interceptor) authenticate(ctx context.Context, headers http.Header) (context.Context, error) {
	authHeader := headers.Get("Authorization")
	if authHeader == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, ErrMissingToken)
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return nil, connect.NewError(connect.CodeUnauthenticated, ErrInvalidTokenFormat)
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])

	identity, err := i.auth.Authenticate(ctx, token)
	if err != nil {
		requestID, _ := ctxutil.RequestID(ctx)
		slog.WarnContext(ctx, "request authentication failed",
			slog.String("request_id", requestID),
			slog.String("result", verify.Result(err)),
			slog.String("error", err.Error()),
		)
		return nil, i.mapToConnectError(err)
	}

	return ctxutil.WithIdentity(ctx, identity), nil
}

func (i *interceptor) mapToConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, ErrJWKSFetch):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeUnauthenticated, err)
	}
}
