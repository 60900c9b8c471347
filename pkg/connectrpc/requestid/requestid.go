// Package requestid provides request ID propagation for Connect RPC handlers,
// so authentication failures can be correlated with client logs.
package requestid

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/deepworx/go-auth0/pkg/ctxutil"
)

const (
	defaultHeaderName = "X-Request-ID"
	defaultMaxLength  = 128
)

// Config holds configuration for the request ID interceptor.
type Config struct {
	// HeaderName is the HTTP header to read request IDs from.
	HeaderName string `koanf:"header_name"`

	// MaxLength bounds accepted request IDs. Longer values are replaced
	// by a generated ID. Defaults to 128.
	MaxLength int `koanf:"max_length"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		HeaderName: defaultHeaderName,
		MaxLength:  defaultMaxLength,
	}
}

// NewInterceptor creates a Connect RPC interceptor that propagates or generates request IDs.
// It accepts the ID from the configured header if it is short and printable ASCII,
// and generates a new UUID v4 otherwise.
// The request ID is stored in the context via ctxutil.WithRequestID.
func NewInterceptor(cfg Config) connect.Interceptor {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = defaultHeaderName
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	return &interceptor{headerName: headerName, maxLength: maxLength}
}

type interceptor struct {
	headerName string
	maxLength  int
}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx = i.ensureRequestID(ctx, req.Header())
		return next(ctx, req)
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx = i.ensureRequestID(ctx, conn.RequestHeader())
		return next(ctx, conn)
	}
}

func (i *interceptor) ensureRequestID(ctx context.Context, headers http.Header) context.Context {
	id := headers.Get(i.headerName)
	if id != "" && !i.acceptable(id) {
		slog.DebugContext(ctx, "replacing unacceptable request id",
			slog.String("header", i.headerName),
			slog.Int("length", len(id)),
		)
		id = ""
	}
	if id == "" {
		id = generateID()
	}
	return ctxutil.WithRequestID(ctx, id)
}

// acceptable reports whether id can be logged verbatim.
func (i *interceptor) acceptable(id string) bool {
	if len(id) > i.maxLength {
		return false
	}
	for k := 0; k < len(id); k++ {
		if id[k] < 0x21 || id[k] > 0x7e {
			return false
		}
	}
	return true
}

func generateID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
