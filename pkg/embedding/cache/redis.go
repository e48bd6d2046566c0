package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clusterkb/clusterkb/pkg/observability"
)

const redisKeyPrefix = "embedding:"

// RedisCache stores embeddings in Redis with a TTL, letting multiple
// processes share one embedding cache. All operations are best effort;
// Redis being down turns every lookup into a miss.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger observability.Logger
}

// NewRedisCache connects to Redis at addr. A zero ttl stores entries
// without expiry.
func NewRedisCache(addr string, ttl time.Duration, logger observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisCacheWithClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached embedding for key, if present.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Redis cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		c.logger.Debug("Redis cache entry is not a valid embedding", map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	return embedding, true
}

// Set stores an embedding under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		c.logger.Debug("Failed to marshal embedding for cache", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("Redis cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
