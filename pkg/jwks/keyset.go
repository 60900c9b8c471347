package jwks

import (
	"encoding/json"
	"fmt"
)

// Family is the algorithm family of a published key.
type Family int

const (
	// FamilyUnsupported covers every key type this package cannot verify with.
	FamilyUnsupported Family = iota
	// FamilyRSA is an RSA public key ("kty": "RSA").
	FamilyRSA
)

func (f Family) String() string {
	switch f {
	case FamilyRSA:
		return "RSA"
	default:
		return "unsupported"
	}
}

// KeyRecord is one key published in a JSON Web Key Set.
// Key parameters are kept as published (base64url text) and are only decoded by BuildKey.
type KeyRecord struct {
	// KeyID is the "kid" value. Uniqueness within a set is guaranteed by the provider.
	KeyID string `json:"kid"`

	// KeyType is the "kty" value (e.g., "RSA", "EC").
	KeyType string `json:"kty"`

	// Algorithm is the optional "alg" value (e.g., "RS256").
	Algorithm string `json:"alg,omitempty"`

	// Use is the optional "use" value (e.g., "sig").
	Use string `json:"use,omitempty"`

	// N is the RSA modulus.
	N string `json:"n,omitempty"`

	// E is the RSA public exponent.
	E string `json:"e,omitempty"`

	// Curve, X and Y are elliptic curve parameters. They are carried so that
	// EC keys round-trip, but EC keys are never turned into key material.
	Curve string `json:"crv,omitempty"`
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`
}

// Family reports the algorithm family of the record.
func (r KeyRecord) Family() Family {
	switch r.KeyType {
	case "RSA":
		return FamilyRSA
	default:
		return FamilyUnsupported
	}
}

// KeySet is an immutable snapshot of a JSON Web Key Set.
// A refreshed set replaces the previous one wholesale.
// The zero value is an empty set that was never fetched (see IsZero).
type KeySet struct {
	keys []KeyRecord
}

// NewKeySet returns a KeySet holding a copy of keys.
func NewKeySet(keys ...KeyRecord) KeySet {
	cp := make([]KeyRecord, len(keys))
	copy(cp, keys)
	return KeySet{keys: cp}
}

// Parse decodes a JWKS document. The document must be a JSON object with a "keys" array.
func Parse(data []byte) (KeySet, error) {
	var doc struct {
		Keys *[]KeyRecord `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return KeySet{}, fmt.Errorf("parse jwks: %w: %w", ErrMalformedResponse, err)
	}
	if doc.Keys == nil {
		return KeySet{}, fmt.Errorf("parse jwks: %w: missing keys array", ErrMalformedResponse)
	}
	return NewKeySet(*doc.Keys...), nil
}

// IsZero reports whether s is the zero KeySet, i.e. no document backs it.
// A fetched document with an empty "keys" array is not zero.
func (s KeySet) IsZero() bool {
	return s.keys == nil
}

// Len returns the number of keys in the set.
func (s KeySet) Len() int {
	return len(s.keys)
}

// Keys returns a copy of the key records.
func (s KeySet) Keys() []KeyRecord {
	cp := make([]KeyRecord, len(s.keys))
	copy(cp, s.keys)
	return cp
}

// KeyIDs returns the key IDs in document order.
func (s KeySet) KeyIDs() []string {
	ids := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		ids = append(ids, k.KeyID)
	}
	return ids
}

// Lookup returns the first record whose key ID equals kid.
func (s KeySet) Lookup(kid string) (KeyRecord, bool) {
	for _, k := range s.keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return KeyRecord{}, false
}

// MarshalJSON encodes the set as a JWKS document.
func (s KeySet) MarshalJSON() ([]byte, error) {
	keys := s.keys
	if keys == nil {
		keys = []KeyRecord{}
	}
	return json.Marshal(struct {
		Keys []KeyRecord `json:"keys"`
	}{Keys: keys})
}
