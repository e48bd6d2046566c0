package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clusterkb/clusterkb/pkg/embedding/cache"
	"github.com/clusterkb/clusterkb/pkg/observability"
)

const cacheEventsMetric = "embedding_cache_events_total"

// Service wraps a Provider with embedding caching and metrics. It satisfies
// Provider, so callers that only need generation can stay oblivious to the
// cache.
type Service struct {
	provider Provider
	cache    cache.Cache
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewService decorates provider. A nil embedding cache disables caching; a
// nil logger or metrics client falls back to no-ops.
func NewService(provider Provider, embeddingCache cache.Cache, logger observability.Logger, metrics observability.MetricsClient) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	return &Service{
		provider: provider,
		cache:    embeddingCache,
		logger:   logger,
		metrics:  metrics,
	}
}

// GenerateEmbedding returns the cached embedding for text when present,
// generating and caching it otherwise.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if s.cache == nil || strings.TrimSpace(text) == "" {
		return s.provider.GenerateEmbedding(ctx, text)
	}

	key := s.cacheKey(text)
	if embedding, ok := s.cache.Get(ctx, key); ok {
		s.metrics.RecordCounter(cacheEventsMetric, 1, map[string]string{"event": "hit"})
		return embedding, nil
	}
	s.metrics.RecordCounter(cacheEventsMetric, 1, map[string]string{"event": "miss"})

	start := time.Now()
	embedding, err := s.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLatency("embedding.generate", time.Since(start))

	s.cache.Set(ctx, key, embedding)
	return embedding, nil
}

// GenerateEmbeddings resolves as many texts as possible from the cache and
// sends only the misses to the provider in one batch. Empty entries are
// dropped first, matching the provider contract.
func (s *Service) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if s.cache == nil {
		return s.provider.GenerateEmbeddings(ctx, texts)
	}

	filtered := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			filtered = append(filtered, text)
		}
	}
	if len(filtered) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(filtered))
	keys := make([]string, len(filtered))
	missIndexes := make([]int, 0, len(filtered))
	missTexts := make([]string, 0, len(filtered))

	hits := 0
	for i, text := range filtered {
		keys[i] = s.cacheKey(text)
		if embedding, ok := s.cache.Get(ctx, keys[i]); ok {
			results[i] = embedding
			hits++
			continue
		}
		missIndexes = append(missIndexes, i)
		missTexts = append(missTexts, text)
	}

	if hits > 0 {
		s.metrics.RecordCounter(cacheEventsMetric, float64(hits), map[string]string{"event": "hit"})
	}
	if len(missTexts) > 0 {
		s.metrics.RecordCounter(cacheEventsMetric, float64(len(missTexts)), map[string]string{"event": "miss"})

		start := time.Now()
		generated, err := s.provider.GenerateEmbeddings(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordLatency("embedding.generate", time.Since(start))

		if len(generated) != len(missTexts) {
			return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(generated), len(missTexts))
		}
		for j, idx := range missIndexes {
			results[idx] = generated[j]
			s.cache.Set(ctx, keys[idx], generated[j])
		}
	}

	return results, nil
}

func (s *Service) cacheKey(text string) string {
	return cache.Key(s.provider.ProviderType(), s.provider.Model(), s.provider.Dimensions(), text)
}

// IsAvailable reports the underlying provider's availability.
func (s *Service) IsAvailable() bool {
	return s.provider.IsAvailable()
}

// Dimensions returns the underlying provider's dimensionality.
func (s *Service) Dimensions() int {
	return s.provider.Dimensions()
}

// Model returns the underlying provider's model identifier.
func (s *Service) Model() string {
	return s.provider.Model()
}

// ProviderType returns the underlying provider's name.
func (s *Service) ProviderType() string {
	return s.provider.ProviderType()
}

// HealthCheck delegates to the underlying provider.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.provider.HealthCheck(ctx)
}
