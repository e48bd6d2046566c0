package knowledge

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/clusterkb/clusterkb/pkg/config"
	"github.com/clusterkb/clusterkb/pkg/embedding"
	"github.com/clusterkb/clusterkb/pkg/embedding/cache"
	"github.com/clusterkb/clusterkb/pkg/models"
	"github.com/clusterkb/clusterkb/pkg/observability"
	"github.com/clusterkb/clusterkb/pkg/search"
	"github.com/clusterkb/clusterkb/pkg/vectorstore"
)

// Typed services, one per entity family.
type (
	PatternService    = search.Service[*models.Pattern]
	PolicyService     = search.Service[*models.PolicyIntent]
	CapabilityService = search.Service[*models.ResourceCapability]
	ResourceService   = search.Service[*models.ClusterResource]
	ChunkService      = search.Service[*models.KnowledgeChunk]
)

// Config carries the settings shared by every typed service. The store
// collection is assigned per service; a zero store dimensionality is filled
// from the embedding provider.
type Config struct {
	Store  vectorstore.Config
	Search search.Config
}

func newEntityService[T any](cfg Config, collection string, mapper search.Mapper[T], provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*search.Service[T], error) {
	storeCfg := cfg.Store
	storeCfg.Collection = collection
	if storeCfg.Dimensions == 0 && provider != nil {
		storeCfg.Dimensions = provider.Dimensions()
	}
	client, err := vectorstore.NewClient(storeCfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	return search.NewService[T](client, provider, mapper, cfg.Search, logger, metrics)
}

// NewPatternService builds the hybrid search service for organizational
// patterns.
func NewPatternService(cfg Config, provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*PatternService, error) {
	return newEntityService[*models.Pattern](cfg, PatternsCollection, PatternMapper{}, provider, logger, metrics)
}

// NewPolicyService builds the hybrid search service for policy intents.
func NewPolicyService(cfg Config, provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*PolicyService, error) {
	return newEntityService[*models.PolicyIntent](cfg, PoliciesCollection, PolicyMapper{}, provider, logger, metrics)
}

// NewCapabilityService builds the hybrid search service for capability
// descriptors.
func NewCapabilityService(cfg Config, provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*CapabilityService, error) {
	return newEntityService[*models.ResourceCapability](cfg, CapabilitiesCollection, CapabilityMapper{}, provider, logger, metrics)
}

// NewResourceService builds the hybrid search service for cluster resource
// metadata.
func NewResourceService(cfg Config, provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*ResourceService, error) {
	return newEntityService[*models.ClusterResource](cfg, ResourcesCollection, ResourceMapper{}, provider, logger, metrics)
}

// NewChunkService builds the hybrid search service for knowledge-base
// chunks.
func NewChunkService(cfg Config, provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*ChunkService, error) {
	return newEntityService[*models.KnowledgeChunk](cfg, KnowledgeCollection, ChunkMapper{}, provider, logger, metrics)
}

// Services bundles the typed services over one backend and one provider.
type Services struct {
	Patterns     *PatternService
	Policies     *PolicyService
	Capabilities *CapabilityService
	Resources    *ResourceService
	Knowledge    *ChunkService
}

// NewServices builds every typed service from one shared configuration.
func NewServices(cfg Config, provider embedding.Provider, logger observability.Logger, metrics observability.MetricsClient) (*Services, error) {
	patterns, err := NewPatternService(cfg, provider, logger, metrics)
	if err != nil {
		return nil, err
	}
	policies, err := NewPolicyService(cfg, provider, logger, metrics)
	if err != nil {
		return nil, err
	}
	capabilities, err := NewCapabilityService(cfg, provider, logger, metrics)
	if err != nil {
		return nil, err
	}
	resources, err := NewResourceService(cfg, provider, logger, metrics)
	if err != nil {
		return nil, err
	}
	knowledge, err := NewChunkService(cfg, provider, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &Services{
		Patterns:     patterns,
		Policies:     policies,
		Capabilities: capabilities,
		Resources:    resources,
		Knowledge:    knowledge,
	}, nil
}

// NewFromConfig assembles the full stack from application configuration:
// the embedding provider (with its optional cache) plus one typed service
// per entity family.
func NewFromConfig(cfg *config.Config, logger observability.Logger, metrics observability.MetricsClient) (*Services, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	provider := embedding.NewProvider(embedding.Config{
		Provider:          cfg.Embedding.Provider,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		OpenAIAPIKey:      cfg.Embedding.OpenAIAPIKey,
		GoogleAPIKey:      cfg.Embedding.GoogleAPIKey,
		Region:            cfg.Embedding.Region,
		MaxRetries:        cfg.Embedding.MaxRetries,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, logger)

	var embeddingCache cache.Cache
	if cfg.Cache.Enabled {
		local := cache.NewMemoryCache(cfg.Cache.MaxEntries)
		if cfg.Cache.RedisAddr != "" {
			embeddingCache = cache.NewTieredCache(local, cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.TTL, logger))
		} else {
			embeddingCache = local
		}
	}
	cached := embedding.NewService(provider, embeddingCache, logger, metrics)

	return NewServices(Config{
		Store: vectorstore.Config{
			URL:         cfg.Store.URL,
			APIKey:      cfg.Store.APIKey,
			Timeout:     cfg.Store.Timeout,
			SettleDelay: cfg.Store.SettleDelay,
			Dimensions:  cached.Dimensions(),
		},
	}, cached, logger, metrics)
}

type initializer interface {
	Initialize(ctx context.Context) error
}

// InitializeAll ensures every collection exists, creating missing ones in
// parallel.
func (s *Services) InitializeAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range []initializer{s.Patterns, s.Policies, s.Capabilities, s.Resources, s.Knowledge} {
		svc := svc
		g.Go(func() error {
			return svc.Initialize(ctx)
		})
	}
	return g.Wait()
}

// HealthCheck probes the shared backend and provider once. The families
// share both, so one probe answers for all of them.
func (s *Services) HealthCheck(ctx context.Context) error {
	return s.Patterns.HealthCheck(ctx)
}

// SearchMode reports whether semantic search is available, and why not
// when it is degraded.
func (s *Services) SearchMode() search.Mode {
	return s.Patterns.SearchMode()
}
