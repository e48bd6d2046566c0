package search

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	commonerrors "github.com/clusterkb/clusterkb/pkg/common/errors"
	"github.com/clusterkb/clusterkb/pkg/observability"
	"github.com/clusterkb/clusterkb/pkg/vectorstore"
)

const searchOperationsMetric = "search_operations_total"

// Options tunes one search call. Zero values fall back to the service
// configuration.
type Options struct {
	// Limit caps the number of returned results.
	Limit int

	// ScoreThreshold drops results scoring below it for this call only.
	ScoreThreshold float64

	// Filter restricts candidates by payload conditions in both branches.
	Filter map[string]interface{}
}

func (s *Service[T]) resolveOptions(opts Options) (int, float64) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = s.cfg.ScoreThreshold
	}
	return limit, threshold
}

// Search runs the hybrid pipeline: the query is embedded and matched
// semantically while its keywords are matched against indexed text, both in
// parallel, and the two result sets are fused. Documents found by both
// branches score the weighted sum, capped at 1.0, and are tagged hybrid.
//
// A query that yields no keywords returns empty results without touching
// the provider or the store. An unavailable provider is an error, never a
// silent downgrade; callers that want literal matching use KeywordSearch.
func (s *Service[T]) Search(ctx context.Context, query string, opts Options) ([]Result[T], error) {
	ctx, span := observability.TraceSearch(ctx, "hybrid")
	defer span.End()
	start := time.Now()

	limit, threshold := s.resolveOptions(opts)
	keywords := Tokenize(query)
	if len(keywords) == 0 {
		return []Result[T]{}, nil
	}

	if !s.provider.IsAvailable() {
		return nil, commonerrors.New("search", "search", commonerrors.ErrorTypeProviderUnavailable,
			"semantic search needs an embedding provider; use KeywordSearch for literal matching")
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.hybrid(ctx, query, keywords, limit, threshold, opts.Filter)
	})
	if err != nil {
		s.recordSearch("hybrid", start, 0, err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, commonerrors.Wrap(err, "search", "search", commonerrors.ErrorTypeStoreOperation,
				"search suspended after repeated failures")
		}
		return nil, err
	}

	results := out.([]Result[T])
	s.recordSearch("hybrid", start, len(results), nil)
	return results, nil
}

// KeywordSearch matches only against indexed text and trigger phrases,
// skipping the embedding provider entirely. This is the explicit path for
// running without embeddings; scores are the raw keyword relevances.
func (s *Service[T]) KeywordSearch(ctx context.Context, query string, opts Options) ([]Result[T], error) {
	ctx, span := observability.TraceSearch(ctx, "keyword")
	defer span.End()
	start := time.Now()

	limit, threshold := s.resolveOptions(opts)
	keywords := Tokenize(query)
	if len(keywords) == 0 {
		return []Result[T]{}, nil
	}

	hits, err := s.store.SearchByKeywords(ctx, keywords, vectorstore.SearchOptions{
		Limit:  limit,
		Filter: opts.Filter,
	})
	if err != nil {
		s.recordSearch("keyword", start, 0, err)
		return nil, err
	}
	results := s.toResults(hits, limit, threshold, MatchKeyword)
	s.recordSearch("keyword", start, len(results), nil)
	return results, nil
}

// hybrid runs both branches in parallel and fuses their hits. Each branch
// over-fetches so fusing has candidates to rerank. Either branch failing
// fails the search.
func (s *Service[T]) hybrid(ctx context.Context, query string, keywords []string, limit int, threshold float64, filter map[string]interface{}) ([]Result[T], error) {
	candidates := limit * s.cfg.SemanticCandidateFactor
	var semantic, keyword []vectorstore.ScoredDocument

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := s.provider.GenerateEmbedding(gctx, query)
		if err != nil {
			return commonerrors.Wrap(err, "search", "search", commonerrors.ErrorTypeEmbeddingGeneration,
				"embedding query")
		}
		hits, err := s.store.SearchSimilar(gctx, vector, vectorstore.SearchOptions{
			Limit:          candidates,
			ScoreThreshold: threshold,
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		semantic = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.store.SearchByKeywords(gctx, keywords, vectorstore.SearchOptions{
			Limit:  candidates,
			Filter: filter,
		})
		if err != nil {
			return err
		}
		keyword = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.fuse(semantic, keyword, limit, threshold), nil
}

type fusedHit struct {
	id        string
	score     float64
	matchType string
	payload   map[string]interface{}
}

// fuse merges the two branches additively so literal hits that are also
// semantically close outrank purely semantic near-misses. First-seen order
// breaks score ties so repeated searches rank identically.
func (s *Service[T]) fuse(semantic, keyword []vectorstore.ScoredDocument, limit int, threshold float64) []Result[T] {
	byID := make(map[string]*fusedHit, len(semantic)+len(keyword))
	order := make([]*fusedHit, 0, len(semantic)+len(keyword))

	for _, hit := range semantic {
		fused := &fusedHit{
			id:        hit.ID,
			score:     hit.Score * s.cfg.SemanticWeight,
			matchType: MatchSemantic,
			payload:   hit.Payload,
		}
		byID[hit.ID] = fused
		order = append(order, fused)
	}
	for _, hit := range keyword {
		if fused, ok := byID[hit.ID]; ok {
			fused.score += hit.Score * s.cfg.KeywordWeight
			if fused.score > 1.0 {
				fused.score = 1.0
			}
			fused.matchType = MatchHybrid
			continue
		}
		fused := &fusedHit{
			id:        hit.ID,
			score:     hit.Score * s.cfg.KeywordWeight,
			matchType: MatchKeyword,
			payload:   hit.Payload,
		}
		byID[hit.ID] = fused
		order = append(order, fused)
	}

	kept := make([]*fusedHit, 0, len(order))
	for _, fused := range order {
		if fused.score < threshold {
			continue
		}
		kept = append(kept, fused)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > limit {
		kept = kept[:limit]
	}

	results := make([]Result[T], 0, len(kept))
	for _, fused := range kept {
		item, err := s.mapper.FromPayload(fused.id, fused.payload)
		if err != nil {
			s.logger.Warn("Dropping search hit with unmappable payload", map[string]interface{}{
				"id":    fused.id,
				"error": err.Error(),
			})
			continue
		}
		results = append(results, Result[T]{Item: item, Score: fused.score, MatchType: fused.matchType})
	}
	return results
}

// toResults converts raw store hits for the single-branch operations.
func (s *Service[T]) toResults(hits []vectorstore.ScoredDocument, limit int, threshold float64, matchType string) []Result[T] {
	results := make([]Result[T], 0, len(hits))
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		item, err := s.mapper.FromPayload(hit.ID, hit.Payload)
		if err != nil {
			s.logger.Warn("Dropping search hit with unmappable payload", map[string]interface{}{
				"id":    hit.ID,
				"error": err.Error(),
			})
			continue
		}
		results = append(results, Result[T]{Item: item, Score: hit.Score, MatchType: matchType})
		if len(results) == limit {
			break
		}
	}
	return results
}

func (s *Service[T]) recordSearch(mode string, start time.Time, resultCount int, err error) {
	s.metrics.RecordCounter(searchOperationsMetric, 1, map[string]string{
		"collection": s.store.Collection(),
		"mode":       mode,
		"success":    strconv.FormatBool(err == nil),
	})
	s.metrics.RecordLatency("search."+mode, time.Since(start))
	if err != nil {
		return
	}
	s.logger.Debug("Search completed", map[string]interface{}{
		"mode":    mode,
		"results": resultCount,
		"took_ms": time.Since(start).Milliseconds(),
	})
}
