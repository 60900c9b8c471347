package jwks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/deepworx/go-auth0/pkg/tracing"
)

// WellKnownPath is the canonical JWKS location relative to an authority.
const WellKnownPath = "/.well-known/jwks.json"

// maxBodySize bounds the JWKS response body. Real key sets are a few KB.
const maxBodySize = 1 << 20

// Fetcher retrieves key sets over HTTP. Every call performs a fresh request.
// A Fetcher is safe for concurrent use.
type Fetcher struct {
	client *http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for key set requests.
// Timeouts and transport-level retries are the client's concern.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewFetcher creates a Fetcher. Defaults to an HTTP client with a 10 second timeout.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses the key set published at url.
// The URL is normalized with NormalizeURL first.
//
// Errors wrap ErrTransport when the request fails or returns a non-200 status,
// and ErrMalformedResponse when the body is not a key set document.
func (f *Fetcher) Fetch(ctx context.Context, url string) (KeySet, error) {
	url = NormalizeURL(url)

	set, err := tracing.WithSpanResult(ctx, "jwks.fetch", func(ctx context.Context) (KeySet, error) {
		return f.fetch(ctx, url)
	}, attribute.String("jwks.url", url))
	recordFetch(ctx, err)
	return set, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) (KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return KeySet{}, fmt.Errorf("create jwks request: %w: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return KeySet{}, fmt.Errorf("fetch jwks from %s: %w: %w", url, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return KeySet{}, fmt.Errorf("fetch jwks from %s: %w: status %d", url, ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return KeySet{}, fmt.Errorf("read jwks from %s: %w: %w", url, ErrTransport, err)
	}
	if len(body) > maxBodySize {
		return KeySet{}, fmt.Errorf("read jwks from %s: %w: body exceeds %d bytes", url, ErrMalformedResponse, maxBodySize)
	}

	set, err := Parse(body)
	if err != nil {
		return KeySet{}, fmt.Errorf("fetch jwks from %s: %w", url, err)
	}

	slog.DebugContext(ctx, "jwks fetched",
		slog.String("url", url),
		slog.Int("keys", set.Len()),
	)
	return set, nil
}

// WellKnownURL returns the normalized JWKS URL for an authority.
func WellKnownURL(authority string) string {
	return NormalizeURL(authority + WellKnownPath)
}

// NormalizeURL collapses repeated slashes in the path of raw, such as the
// "https://tenant.example.com//.well-known" produced by joining an authority
// that ends in "/". The scheme separator and the query string are left alone.
func NormalizeURL(raw string) string {
	prefix, rest := "", raw
	if i := strings.Index(raw, "://"); i >= 0 {
		prefix, rest = raw[:i+3], raw[i+3:]
	}

	suffix := ""
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest, suffix = rest[:i], rest[i:]
	}

	for strings.Contains(rest, "//") {
		rest = strings.ReplaceAll(rest, "//", "/")
	}
	return prefix + rest + suffix
}
