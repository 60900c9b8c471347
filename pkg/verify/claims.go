package verify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Claims is the decoded payload of a verified token.
// Numeric values are kept as json.Number.
type Claims map[string]any

// TokenData is a token that passed signature and claims validation.
type TokenData struct {
	Header Header `json:"header"`
	Claims Claims `json:"claims"`
}

func decodeClaims(payload []byte) (Claims, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var c Claims
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	return c, nil
}

// Has reports whether the claim is present.
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// GetString returns the claim as a string. ok is false if it is absent or not a string.
func (c Claims) GetString(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Subject returns the "sub" claim.
func (c Claims) Subject() string {
	s, _ := c.GetString("sub")
	return s
}

// Issuer returns the "iss" claim.
func (c Claims) Issuer() string {
	s, _ := c.GetString("iss")
	return s
}

// Audience returns the "aud" claim, which may be a single string or an array.
func (c Claims) Audience() []string {
	v, ok := c["aud"]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}
	default:
		aud, _ := toStringSlice(v)
		return aud
	}
}

// Scopes returns the space separated "scope" claim.
func (c Claims) Scopes() []string {
	return c.StringSlice("scope")
}

// StringSlice returns the claim at path as a string slice.
// Arrays keep their string elements; strings are split on whitespace.
func (c Claims) StringSlice(path string) []string {
	v, ok := c.Path(path)
	if !ok {
		return nil
	}
	s, err := toStringSlice(v)
	if err != nil {
		return nil
	}
	return s
}

// Path retrieves a claim value using dot notation (e.g., "realm_access.roles").
func (c Claims) Path(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	current, ok := c[parts[0]]
	if !ok {
		return nil, false
	}

	for _, part := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func toStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result, nil
	case string:
		return strings.Fields(val), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to []string", v)
	}
}
