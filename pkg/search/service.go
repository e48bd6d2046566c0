// Package search provides hybrid retrieval over a vector store: semantic
// similarity through an embedding provider combined with keyword matching
// against indexed text. The service is generic over the stored domain type;
// a Mapper supplies the conversion. Semantic operations fail loudly when no
// embedding provider is available; KeywordSearch is the explicit path for
// running without embeddings.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	commonerrors "github.com/clusterkb/clusterkb/pkg/common/errors"
	"github.com/clusterkb/clusterkb/pkg/embedding"
	"github.com/clusterkb/clusterkb/pkg/observability"
	"github.com/clusterkb/clusterkb/pkg/vectorstore"
)

const (
	defaultLimit           = 10
	defaultScoreThreshold  = 0.01
	defaultSemanticWeight  = 0.5
	defaultKeywordWeight   = 0.5
	defaultCandidateFactor = 2
)

// Match types reported on search results.
const (
	MatchSemantic = "semantic"
	MatchKeyword  = "keyword"
	MatchHybrid   = "hybrid"
)

// Payload fields the service maintains on every stored document.
const (
	fieldSearchText   = "searchText"
	fieldTriggers     = "triggers"
	fieldHasEmbedding = "hasEmbedding"
)

// Config tunes search behavior. The zero value gets sensible defaults.
type Config struct {
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit int

	// ScoreThreshold drops combined results scoring below it.
	ScoreThreshold float64

	// SemanticWeight and KeywordWeight scale each branch's scores before
	// combining. Documents found by both branches get the capped sum.
	SemanticWeight float64
	KeywordWeight  float64

	// SemanticCandidateFactor controls how many semantic candidates are
	// requested relative to the limit, so combining has room to rerank.
	SemanticCandidateFactor int
}

func (c *Config) applyDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultLimit
	}
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = defaultScoreThreshold
	}
	if c.SemanticWeight <= 0 {
		c.SemanticWeight = defaultSemanticWeight
	}
	if c.KeywordWeight <= 0 {
		c.KeywordWeight = defaultKeywordWeight
	}
	if c.SemanticCandidateFactor <= 0 {
		c.SemanticCandidateFactor = defaultCandidateFactor
	}
}

// Result is one search hit with its combined score and how it matched.
type Result[T any] struct {
	Item      T       `json:"item"`
	Score     float64 `json:"score"`
	MatchType string  `json:"matchType"`
}

// Mode describes which search paths are currently live and, when semantic
// search is down, why.
type Mode struct {
	Hybrid            bool   `json:"hybrid"`
	SemanticAvailable bool   `json:"semanticAvailable"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Dimensions        int    `json:"dimensions"`
	Collection        string `json:"collection"`
	Reason            string `json:"reason,omitempty"`
}

// Service stores and retrieves one domain type in a vector collection.
type Service[T any] struct {
	store    Store
	provider embedding.Provider
	mapper   Mapper[T]
	cfg      Config
	breaker  *gobreaker.CircuitBreaker
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewService wires a search service over a store and an embedding provider.
func NewService[T any](store Store, provider embedding.Provider, mapper Mapper[T], cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Service[T], error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if store == nil {
		return nil, commonerrors.New("search", "new_service", commonerrors.ErrorTypeConfiguration, "store is required")
	}
	if provider == nil {
		return nil, commonerrors.New("search", "new_service", commonerrors.ErrorTypeConfiguration, "embedding provider is required")
	}
	if mapper == nil {
		return nil, commonerrors.New("search", "new_service", commonerrors.ErrorTypeConfiguration, "mapper is required")
	}
	cfg.applyDefaults()

	if provider.IsAvailable() && provider.Dimensions() != store.Dimensions() {
		logger.Warn("Embedding dimensions differ from the collection vector size", map[string]interface{}{
			"collection": store.Collection(),
			"store":      store.Dimensions(),
			"provider":   provider.Dimensions(),
		})
	}

	settings := gobreaker.Settings{
		Name:        "search-" + store.Collection(),
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}

	return &Service[T]{
		store:    store,
		provider: provider,
		mapper:   mapper,
		cfg:      cfg,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Initialize makes the backing collection and its indexes usable.
func (s *Service[T]) Initialize(ctx context.Context) error {
	return s.store.EnsureCollection(ctx)
}

// Store embeds one item and writes it to the collection. Without an
// available provider nothing is written.
func (s *Service[T]) Store(ctx context.Context, item T) error {
	id := s.mapper.ID(item)
	if id == "" {
		return commonerrors.New("search", "store", commonerrors.ErrorTypeConfiguration, "item has no ID")
	}
	if !s.provider.IsAvailable() {
		return commonerrors.New("search", "store", commonerrors.ErrorTypeProviderUnavailable,
			fmt.Sprintf("embedding provider %s is not available", s.provider.ProviderType()))
	}

	searchText := s.mapper.SearchText(item)
	vector, err := s.provider.GenerateEmbedding(ctx, searchText)
	if err != nil {
		return commonerrors.Wrap(err, "search", "store", commonerrors.ErrorTypeEmbeddingGeneration,
			"generating embedding for "+id)
	}

	doc, err := s.buildDocument(item, id, searchText, vector)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, []vectorstore.VectorDocument{doc})
}

// StoreBatch embeds and writes many items in one round trip. Items without
// search text are skipped with a warning so one bad record does not sink a
// bulk load.
func (s *Service[T]) StoreBatch(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if !s.provider.IsAvailable() {
		return commonerrors.New("search", "store_batch", commonerrors.ErrorTypeProviderUnavailable,
			fmt.Sprintf("embedding provider %s is not available", s.provider.ProviderType()))
	}

	kept := make([]T, 0, len(items))
	texts := make([]string, 0, len(items))
	for _, item := range items {
		text := s.mapper.SearchText(item)
		if text == "" {
			s.logger.Warn("Skipping item without search text", map[string]interface{}{
				"id": s.mapper.ID(item),
			})
			continue
		}
		kept = append(kept, item)
		texts = append(texts, text)
	}
	if len(kept) == 0 {
		return nil
	}

	vectors, err := s.provider.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return commonerrors.Wrap(err, "search", "store_batch", commonerrors.ErrorTypeEmbeddingGeneration,
			fmt.Sprintf("generating %d embeddings", len(texts)))
	}
	if len(vectors) != len(kept) {
		return commonerrors.New("search", "store_batch", commonerrors.ErrorTypeEmbeddingGeneration,
			fmt.Sprintf("provider returned %d embeddings for %d texts", len(vectors), len(kept)))
	}

	docs := make([]vectorstore.VectorDocument, 0, len(kept))
	for i, item := range kept {
		id := s.mapper.ID(item)
		if id == "" {
			return commonerrors.New("search", "store_batch", commonerrors.ErrorTypeConfiguration, "item has no ID")
		}
		doc, err := s.buildDocument(item, id, texts[i], vectors[i])
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	return s.store.Upsert(ctx, docs)
}

func (s *Service[T]) buildDocument(item T, id, searchText string, vector []float32) (vectorstore.VectorDocument, error) {
	payload, err := s.mapper.Payload(item)
	if err != nil {
		return vectorstore.VectorDocument{}, commonerrors.Wrap(err, "search", "store", commonerrors.ErrorTypeStoreOperation,
			"building payload for "+id)
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload[fieldSearchText] = searchText
	payload[fieldHasEmbedding] = len(vector) > 0
	if triggers := s.mapper.Triggers(item); len(triggers) > 0 {
		payload[fieldTriggers] = triggers
	}
	return vectorstore.VectorDocument{ID: id, Vector: vector, Payload: payload}, nil
}

// Get fetches one item by ID. A missing item returns found=false, not an
// error.
func (s *Service[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return zero, false, err
	}
	if doc == nil {
		return zero, false, nil
	}
	item, err := s.mapper.FromPayload(doc.ID, doc.Payload)
	if err != nil {
		return zero, false, commonerrors.Wrap(err, "search", "get", commonerrors.ErrorTypeStoreOperation,
			"decoding payload for "+id)
	}
	return item, true, nil
}

// Delete removes one item. Deleting an absent ID succeeds.
func (s *Service[T]) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// DeleteAll removes every item while keeping the collection usable.
func (s *Service[T]) DeleteAll(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}

// List returns up to limit stored items; a non-positive limit returns all
// of them. Documents whose payload no longer maps are skipped with a
// warning rather than failing the whole listing.
func (s *Service[T]) List(ctx context.Context, limit int) ([]T, error) {
	return s.listFiltered(ctx, nil, limit, "list")
}

// QueryWithFilter returns up to limit items whose payload matches the
// filter conditions. No embedding is involved; this is a filtered listing.
func (s *Service[T]) QueryWithFilter(ctx context.Context, filter map[string]interface{}, limit int) ([]T, error) {
	return s.listFiltered(ctx, filter, limit, "query_with_filter")
}

func (s *Service[T]) listFiltered(ctx context.Context, filter map[string]interface{}, limit int, operation string) ([]T, error) {
	docs, err := s.store.List(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := s.mapper.FromPayload(doc.ID, doc.Payload)
		if err != nil {
			s.logger.Warn("Skipping document with unmappable payload", map[string]interface{}{
				"operation": operation,
				"id":        doc.ID,
				"error":     err.Error(),
			})
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Count returns the number of stored items.
func (s *Service[T]) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// HealthCheck verifies the store answers. Provider trouble is logged but
// not fatal: keyword search keeps working without embeddings.
func (s *Service[T]) HealthCheck(ctx context.Context) error {
	if err := s.store.HealthCheck(ctx); err != nil {
		return err
	}
	if !s.provider.IsAvailable() {
		s.logger.Warn("Embedding provider unavailable; only keyword search will work", map[string]interface{}{
			"provider": s.provider.ProviderType(),
		})
	}
	return nil
}

// SearchMode reports which search paths are live, for diagnostics.
func (s *Service[T]) SearchMode() Mode {
	available := s.provider.IsAvailable()
	mode := Mode{
		Hybrid:            available,
		SemanticAvailable: available,
		Provider:          s.provider.ProviderType(),
		Model:             s.provider.Model(),
		Dimensions:        s.provider.Dimensions(),
		Collection:        s.store.Collection(),
	}
	if !available {
		mode.Reason = fmt.Sprintf("embedding provider %s reports unavailable; check its credentials", mode.Provider)
	}
	return mode
}
