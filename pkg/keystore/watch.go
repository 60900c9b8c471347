package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/deepworx/go-auth0/pkg/jwks"
)

// WatchConfig configures background key set refresh.
type WatchConfig struct {
	// HTTPClient is used for JWKS requests.
	// Defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	// Interval between refreshes.
	// Defaults to 15 minutes if zero.
	Interval time.Duration
}

// Watcher refreshes a Store from a JWKS URL through a jwk.Cache.
type Watcher struct {
	store    *Store
	cache    *jwk.Cache
	url      string
	interval time.Duration
}

// NewWatcher registers jwksURL with a jwk.Cache and loads the initial key set into store.
// The ctx controls the lifecycle of the cache's background goroutines.
func NewWatcher(ctx context.Context, store *Store, jwksURL string, cfg WatchConfig) (*Watcher, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = 15 * time.Minute
	}

	jwksURL = jwks.NormalizeURL(jwksURL)

	cache, err := jwk.NewCache(ctx, httprc.NewClient(
		httprc.WithHTTPClient(client),
	))
	if err != nil {
		return nil, fmt.Errorf("create jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("register jwks url %s: %w: %w", jwksURL, jwks.ErrTransport, err)
	}

	w := &Watcher{
		store:    store,
		cache:    cache,
		url:      jwksURL,
		interval: interval,
	}

	set, err := cache.Lookup(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("initial jwks fetch from %s: %w: %w", jwksURL, jwks.ErrTransport, err)
	}
	if err := w.apply(set); err != nil {
		return nil, err
	}
	return w, nil
}

// Run refreshes the store every interval until ctx is done.
// Refresh failures are logged and the previous key set is kept.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sync(ctx); err != nil {
				slog.WarnContext(ctx, "jwks refresh failed",
					slog.String("url", w.url),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sync forces a refresh and stores the result.
func (w *Watcher) Sync(ctx context.Context) error {
	set, err := w.cache.Refresh(ctx, w.url)
	if err != nil {
		return fmt.Errorf("refresh jwks from %s: %w: %w", w.url, jwks.ErrTransport, err)
	}
	return w.apply(set)
}

func (w *Watcher) apply(set jwk.Set) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode jwks: %w: %w", jwks.ErrMalformedResponse, err)
	}
	ks, err := jwks.Parse(raw)
	if err != nil {
		return fmt.Errorf("convert jwks: %w", err)
	}

	w.store.Swap(ks)
	slog.Debug("jwks updated",
		slog.String("url", w.url),
		slog.Int("keys", ks.Len()),
	)
	return nil
}
