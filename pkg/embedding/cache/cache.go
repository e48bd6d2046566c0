// Package cache stores generated embeddings so repeated texts do not pay
// for a second provider round trip. Lookups are best effort: a cache that
// cannot answer reports a miss and the caller regenerates.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Cache is a read-through store for embedding vectors.
type Cache interface {
	// Get returns the cached embedding for key, if present.
	Get(ctx context.Context, key string) ([]float32, bool)

	// Set stores an embedding under key. Failures are swallowed; the cache
	// is an optimization, not a source of truth.
	Set(ctx context.Context, key string, embedding []float32)

	// Close releases any held resources.
	Close() error
}

// Key builds a stable cache key. The provider, model and dimensionality are
// part of the key so vectors from different configurations never collide.
func Key(provider, model string, dimensions int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%s", provider, model, dimensions, text)))
	return hex.EncodeToString(sum[:])
}
