package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxEntries = 10000

// MemoryCache is an in-process LRU cache for embeddings.
type MemoryCache struct {
	entries *lru.Cache[string, []float32]
}

// NewMemoryCache creates an LRU cache holding at most maxEntries embeddings.
// A non-positive size falls back to the default.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	// lru.New only fails for a non-positive size, which is normalized above.
	entries, err := lru.New[string, []float32](maxEntries)
	if err != nil {
		panic(err)
	}
	return &MemoryCache{entries: entries}
}

// Get returns the cached embedding for key, if present.
func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	return c.entries.Get(key)
}

// Set stores an embedding under key, evicting the least recently used entry
// when full.
func (c *MemoryCache) Set(_ context.Context, key string, embedding []float32) {
	c.entries.Add(key, embedding)
}

// Len reports the number of cached embeddings.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Close is a no-op for the in-process cache.
func (c *MemoryCache) Close() error {
	return nil
}
