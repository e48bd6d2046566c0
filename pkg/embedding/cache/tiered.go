package cache

import "context"

// TieredCache layers a fast local cache in front of a shared one. Reads
// check the local tier first and promote shared hits into it; writes go to
// both tiers.
type TieredCache struct {
	local  Cache
	shared Cache
}

// NewTieredCache combines a local and a shared cache. Either may be nil, in
// which case the other tier serves alone.
func NewTieredCache(local, shared Cache) *TieredCache {
	return &TieredCache{local: local, shared: shared}
}

// Get checks the local tier, then the shared tier. A shared hit is promoted
// into the local tier.
func (c *TieredCache) Get(ctx context.Context, key string) ([]float32, bool) {
	if c.local != nil {
		if embedding, ok := c.local.Get(ctx, key); ok {
			return embedding, true
		}
	}
	if c.shared != nil {
		if embedding, ok := c.shared.Get(ctx, key); ok {
			if c.local != nil {
				c.local.Set(ctx, key, embedding)
			}
			return embedding, true
		}
	}
	return nil, false
}

// Set stores the embedding in both tiers.
func (c *TieredCache) Set(ctx context.Context, key string, embedding []float32) {
	if c.local != nil {
		c.local.Set(ctx, key, embedding)
	}
	if c.shared != nil {
		c.shared.Set(ctx, key, embedding)
	}
}

// Close closes both tiers, returning the first error seen.
func (c *TieredCache) Close() error {
	var firstErr error
	if c.local != nil {
		if err := c.local.Close(); err != nil {
			firstErr = err
		}
	}
	if c.shared != nil {
		if err := c.shared.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
