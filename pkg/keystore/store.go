// Package keystore holds the key set shared by concurrent verifications
// and optionally keeps it fresh in the background.
package keystore

import (
	"context"
	"sync"
	"time"

	"github.com/deepworx/go-auth0/pkg/jwks"
	"github.com/deepworx/go-auth0/pkg/verify"
)

// TokenVerifier is implemented by *verify.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token, authority string, policy verify.Policy, known *jwks.KeySet) (*verify.TokenData, jwks.KeySet, error)
}

// Store is a concurrency-safe holder for a key set.
type Store struct {
	mu      sync.RWMutex
	set     jwks.KeySet
	updated time.Time
}

// New returns an empty Store. The first verification fetches the key set.
func New() *Store {
	return &Store{}
}

// NewWith returns a Store seeded with set.
func NewWith(set jwks.KeySet) *Store {
	s := &Store{}
	s.Swap(set)
	return s
}

// Load returns the current key set. It is the zero KeySet if nothing was stored yet.
func (s *Store) Load() jwks.KeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Updated returns when the key set was last replaced.
func (s *Store) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Swap replaces the key set and returns the previous one.
// A zero set is ignored.
func (s *Store) Swap(set jwks.KeySet) jwks.KeySet {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.set
	if set.IsZero() {
		return prev
	}
	s.set = set
	s.updated = time.Now()
	return prev
}

// Verify verifies token using the stored key set and keeps the set returned by v.
func (s *Store) Verify(ctx context.Context, v TokenVerifier, token, authority string, policy verify.Policy) (*verify.TokenData, error) {
	var known *jwks.KeySet
	if set := s.Load(); !set.IsZero() {
		known = &set
	}

	data, used, err := v.Verify(ctx, token, authority, policy, known)
	if !used.IsZero() && (known == nil || !sameKeys(*known, used)) {
		s.Swap(used)
	}
	return data, err
}

func sameKeys(a, b jwks.KeySet) bool {
	if a.Len() != b.Len() {
		return false
	}
	ak, bk := a.Keys(), b.Keys()
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}
	return true
}
