package revocation

import (
	"context"
	"sync"
)

// Store tracks revoked token identifiers (jti claims).
//
// Implementations must guarantee that once an identifier has been revoked it
// stays revoked until Clear is called or the backing entry is removed by the
// deployment's own retention policy. Revocation is never undone by time
// passing while the associated token is still within its lifetime.
type Store interface {
	Revoke(ctx context.Context, id string) error
	IsRevoked(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// MemoryStore is the default single-process [Store]. Entries live until
// Clear; horizontally scaled deployments should substitute [RedisStore] or
// their own shared implementation.
type MemoryStore struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemoryStore creates an empty in-memory revocation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

// Revoke marks the identifier as revoked. Revoking an already revoked
// identifier is a no-op.
func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
	return nil
}

// IsRevoked reports whether the identifier has been revoked.
func (s *MemoryStore) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.ids[id]
	s.mu.RUnlock()
	return ok, nil
}

// Clear removes every revocation entry.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
	return nil
}

// Len returns the number of revoked identifiers currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
