package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterkb/clusterkb/pkg/embedding/cache"
	"github.com/clusterkb/clusterkb/pkg/embedding/providers"
	"github.com/clusterkb/clusterkb/pkg/observability"
)

// captureMetrics records cache event counters, delegating everything else
// to a no-op client.
type captureMetrics struct {
	observability.MetricsClient
	mu     sync.Mutex
	events map[string]float64
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		MetricsClient: observability.NewNoOpMetricsClient(),
		events:        make(map[string]float64),
	}
}

func (c *captureMetrics) RecordCounter(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[name+"|"+labels["event"]] += value
}

func (c *captureMetrics) event(name, event string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[name+"|"+event]
}

func newCachedService(t *testing.T, opts ...providers.MockProviderOption) (*Service, *providers.MockProvider, *captureMetrics) {
	t.Helper()
	provider := providers.NewMockProvider(opts...)
	metrics := newCaptureMetrics()
	service := NewService(provider, cache.NewMemoryCache(100), observability.NewNoopLogger(), metrics)
	return service, provider, metrics
}

func TestServiceCachesSingleEmbeddings(t *testing.T) {
	service, provider, metrics := newCachedService(t)
	ctx := context.Background()

	first, err := service.GenerateEmbedding(ctx, "patterns are reusable")
	require.NoError(t, err)

	second, err := service.GenerateEmbedding(ctx, "patterns are reusable")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.GenerateCallCount(), "second call should be served from cache")
	assert.Equal(t, float64(1), metrics.event("embedding_cache_events_total", "miss"))
	assert.Equal(t, float64(1), metrics.event("embedding_cache_events_total", "hit"))
}

func TestServiceBatchUsesCacheForKnownTexts(t *testing.T) {
	service, provider, metrics := newCachedService(t)
	ctx := context.Background()

	warmed, err := service.GenerateEmbedding(ctx, "alpha")
	require.NoError(t, err)

	results, err := service.GenerateEmbeddings(ctx, []string{"alpha", "", "beta"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, warmed, results[0])

	batches := provider.BatchTexts()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"beta"}, batches[0], "only the cache miss reaches the provider")

	assert.Equal(t, float64(1), metrics.event("embedding_cache_events_total", "hit"))
	assert.Equal(t, float64(2), metrics.event("embedding_cache_events_total", "miss"))
}

func TestServiceBatchFullyCachedSkipsProvider(t *testing.T) {
	service, provider, _ := newCachedService(t)
	ctx := context.Background()

	_, err := service.GenerateEmbeddings(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.BatchCallCount())

	_, err = service.GenerateEmbeddings(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.BatchCallCount(), "second batch should be fully cached")
}

func TestServiceAllEmptyBatch(t *testing.T) {
	service, provider, _ := newCachedService(t)

	results, err := service.GenerateEmbeddings(context.Background(), []string{"", "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, provider.BatchCallCount())
	assert.Equal(t, 0, provider.GenerateCallCount())
}

func TestServiceNilCachePassesThrough(t *testing.T) {
	provider := providers.NewMockProvider()
	service := NewService(provider, nil, nil, nil)
	ctx := context.Background()

	_, err := service.GenerateEmbedding(ctx, "hello")
	require.NoError(t, err)
	_, err = service.GenerateEmbedding(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.GenerateCallCount())
}

func TestServiceProviderErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	provider := providers.NewMockProvider(providers.WithGenerateError(boom))
	memory := cache.NewMemoryCache(100)
	service := NewService(provider, memory, nil, nil)

	_, err := service.GenerateEmbedding(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, memory.Len(), "failed generations are not cached")

	_, err = service.GenerateEmbeddings(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, boom)
}

func TestServiceEmptySingleTextRejected(t *testing.T) {
	service, _, _ := newCachedService(t)

	_, err := service.GenerateEmbedding(context.Background(), "  ")
	require.Error(t, err)

	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "EMPTY_INPUT", provErr.Code)
}

func TestServiceDelegatesProviderIdentity(t *testing.T) {
	service, provider, _ := newCachedService(t, providers.WithDimensions(42), providers.WithModel("mock-42"))

	assert.Equal(t, provider.IsAvailable(), service.IsAvailable())
	assert.Equal(t, 42, service.Dimensions())
	assert.Equal(t, "mock-42", service.Model())
	assert.Equal(t, "mock", service.ProviderType())
	assert.NoError(t, service.HealthCheck(context.Background()))
}
