package slogutil

import "errors"

var (
	// ErrInvalidLevel is returned when Level is not one of the supported level names.
	ErrInvalidLevel = errors.New("slogutil: invalid log level")

	// ErrInvalidFormat is returned when Format is neither text nor json.
	ErrInvalidFormat = errors.New("slogutil: invalid log format")

	// ErrInvalidRedactKey is returned when Redact contains a blank key.
	// A blank key would never match an attribute and usually means a
	// trailing comma in AUTH0_LOG__REDACT.
	ErrInvalidRedactKey = errors.New("slogutil: blank redact key")
)
