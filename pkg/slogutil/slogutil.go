// Package slogutil provides configuration and setup utilities for slog,
// including redaction of credentials handled by the auth clients.
package slogutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Config holds configuration for slog setup.
type Config struct {
	// Level is the minimum log level.
	// Valid values: "debug", "info", "warn", "warning", "error".
	// Default: "info"
	Level string `koanf:"level"`

	// Format is the output format.
	// Valid values: "text", "json".
	// Default: "text"
	Format string `koanf:"format"`

	// Redact lists attribute keys whose values are always replaced by a Secret rendering,
	// whichever package logs them. Matching is case-insensitive.
	// Default: client_secret, password, access_token, authorization
	Redact []string `koanf:"redact"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Redact: []string{"client_secret", "password", "access_token", "authorization"},
	}
}

// Setup configures the global slog logger based on cfg.
// It sets slog.SetDefault() with the configured handler writing to os.Stderr.
// Returns error if Level or Format contains invalid values.
func Setup(cfg Config) error {
	logger, err := New(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("setup slog: %w", err)
	}

	slog.SetDefault(logger)
	return nil
}

// New builds a logger writing to w without installing it as the default.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	for i, k := range cfg.Redact {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidRedactKey, i)
		}
	}

	handler, err := newHandler(w, cfg.Format, level, cfg.Redact)
	if err != nil {
		return nil, err
	}

	return slog.New(handler), nil
}

// Secret returns an attribute that identifies value without revealing it:
// its length and the first 8 hex digits of its SHA-256.
func Secret(key, value string) slog.Attr {
	return slog.String(key, redact(value))
}

func redact(value string) string {
	if value == "" {
		return "<empty>"
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("<redacted len=%d sha256=%s>", len(value), hex.EncodeToString(sum[:4]))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

func newHandler(w io.Writer, format string, level slog.Level, redactKeys []string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceSecrets(redactKeys),
	}

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

func replaceSecrets(keys []string) func([]string, slog.Attr) slog.Attr {
	if len(keys) == 0 {
		return nil
	}
	lower := make([]string, len(keys))
	for i, k := range keys {
		lower[i] = strings.ToLower(k)
	}

	return func(_ []string, a slog.Attr) slog.Attr {
		if a.Value.Kind() != slog.KindString || !slices.Contains(lower, strings.ToLower(a.Key)) {
			return a
		}
		if strings.HasPrefix(a.Value.String(), "<redacted ") || a.Value.String() == "<empty>" {
			return a
		}
		return Secret(a.Key, a.Value.String())
	}
}
