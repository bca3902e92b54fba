package contextprov

import (
	"context"
	"sync"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// Cache memoizes provider fetches for the lifetime of one batch evaluation,
// so rules sharing an asset/identity pair hit the provider once. It is safe
// for concurrent use by the batch workers.
type Cache struct {
	provider Provider

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	snapshot *models.ContextSnapshot
	err      error
}

// NewCache wraps a provider with per-evaluation memoization.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[string]cacheEntry),
	}
}

// GetContext returns the cached snapshot for the pair, fetching on first use.
// Fetch errors are cached too: a failing provider is not retried within the
// same batch.
func (c *Cache) GetContext(ctx context.Context, assetID, identityID string, neededKeys []string) (*models.ContextSnapshot, error) {
	key := assetID + "|" + identityID

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return entry.snapshot, entry.err
	}
	c.mu.Unlock()

	snapshot, err := c.provider.GetContext(ctx, assetID, identityID, neededKeys)

	c.mu.Lock()
	c.entries[key] = cacheEntry{snapshot: snapshot, err: err}
	c.mu.Unlock()

	return snapshot, err
}
