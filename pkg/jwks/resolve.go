package jwks

import (
	"context"
	"fmt"
	"log/slog"
)

// KeySetFetcher retrieves a fresh key set from a URL.
// *Fetcher is the production implementation.
type KeySetFetcher interface {
	Fetch(ctx context.Context, url string) (KeySet, error)
}

// Resolver looks up keys by key ID and refreshes the key set at most once per call.
type Resolver struct {
	fetcher KeySetFetcher
}

// NewResolver creates a Resolver that refreshes key sets through fetcher.
func NewResolver(fetcher KeySetFetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve returns the record whose key ID equals kid, along with the key set it was found in.
//
// When known is nil a key set is fetched from jwksURL first. If kid is missing from
// the set being searched, the set is fetched again exactly once and searched again;
// a second miss returns ErrKeyNotFound. known is never modified.
//
// The returned KeySet is the set searched last: *known when it satisfied the lookup,
// otherwise the freshly fetched set. It is the zero KeySet only when a fetch failed.
func (r *Resolver) Resolve(ctx context.Context, kid string, known *KeySet, jwksURL string) (KeyRecord, KeySet, error) {
	var set KeySet
	if known != nil {
		set = *known
	} else {
		fetched, err := r.fetcher.Fetch(ctx, jwksURL)
		if err != nil {
			return KeyRecord{}, KeySet{}, fmt.Errorf("resolve kid %q: %w", kid, err)
		}
		set = fetched
	}

	for attempt := 0; attempt < 2; attempt++ {
		if rec, ok := set.Lookup(kid); ok {
			return rec, set, nil
		}
		if attempt > 0 {
			break
		}

		slog.DebugContext(ctx, "jwks key miss, refreshing key set",
			slog.String("kid", kid),
			slog.String("url", jwksURL),
		)
		fresh, err := r.fetcher.Fetch(ctx, jwksURL)
		if err != nil {
			return KeyRecord{}, KeySet{}, fmt.Errorf("refresh jwks for kid %q: %w", kid, err)
		}
		set = fresh
	}

	return KeyRecord{}, set, fmt.Errorf("resolve kid %q: %w", kid, ErrKeyNotFound)
}
