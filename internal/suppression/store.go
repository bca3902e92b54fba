package suppression

import (
	"context"
	"sync"
	"time"
)

// Store tracks recently emitted dedupe keys. Implementations must make
// CheckAndRecord atomic per key so concurrent matches for the same entity
// cannot both emit.
type Store interface {
	// CheckAndRecord reports whether key was already recorded within its
	// window. When it was not, the key is recorded with the window as TTL
	// and false is returned.
	CheckAndRecord(ctx context.Context, key string, window time.Duration) (bool, error)

	// Size returns the number of live dedupe entries, for diagnostics.
	Size(ctx context.Context) (int, error)
}

// MemoryStore is the in-process Store used when Redis is not configured.
// Single-node only; a multi-replica deployment needs the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory dedupe store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) CheckAndRecord(_ context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.entries[key]; ok && now.Before(expiry) {
		return true, nil
	}
	s.entries[key] = now.Add(window)
	return false, nil
}

func (s *MemoryStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Sweep drops expired entries. Call periodically; CheckAndRecord alone
// never shrinks the map.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
