package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deepworx/go-auth0/pkg/jwks"
)

// ErrStale is returned by KeySetFresh when the cached key set is too old.
var ErrStale = errors.New("health: key set is stale")

// JWKSReachable checks that url serves a key set with at least one key.
func JWKSReachable(f jwks.KeySetFetcher, url string) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		set, err := f.Fetch(ctx, url)
		if err != nil {
			return err
		}
		if set.Len() == 0 {
			return fmt.Errorf("jwks %s: no keys published", url)
		}
		return nil
	})
}

// KeySetFresh checks that the time reported by updated is within maxAge of now.
// A zero time counts as stale.
func KeySetFresh(updated func() time.Time, maxAge time.Duration) Checker {
	return CheckerFunc(func(context.Context) error {
		at := updated()
		if at.IsZero() {
			return fmt.Errorf("%w: never loaded", ErrStale)
		}
		if age := time.Since(at); age > maxAge {
			return fmt.Errorf("%w: last update %s ago", ErrStale, age.Round(time.Second))
		}
		return nil
	})
}
