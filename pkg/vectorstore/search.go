package vectorstore

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/clusterkb/clusterkb/pkg/observability"
)

// triggersField is the payload field holding short activation phrases that
// keyword search matches in addition to the indexed text.
const triggersField = "triggers"

// SearchSimilar runs a vector similarity search and returns scored
// documents, best first. Scores are cosine similarities from the store.
func (c *Client) SearchSimilar(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredDocument, error) {
	ctx, span := observability.TraceVector(ctx, c.collection, "search_similar")
	defer span.End()

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if opts.ScoreThreshold > 0 {
		body["score_threshold"] = opts.ScoreThreshold
	}
	if len(opts.Filter) > 0 {
		body["filter"] = opts.Filter
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", body)
	c.observe("search", start, err)
	if err != nil {
		return nil, wrapStoreError(err, "search_similar", "running similarity search")
	}

	results, ok := resp["result"].([]interface{})
	if !ok {
		return []ScoredDocument{}, nil
	}

	docs := make([]ScoredDocument, 0, len(results))
	for _, raw := range results {
		hit, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		doc := parsePoint(raw)
		if doc == nil {
			continue
		}
		scored := ScoredDocument{ID: doc.ID, Payload: doc.Payload}
		if score, ok := hit["score"].(float64); ok {
			scored.Score = score
		}
		docs = append(docs, scored)
	}
	span.SetAttribute("result_count", len(docs))
	return docs, nil
}

// SearchByKeywords matches keywords against the indexed text and trigger
// phrases and scores candidates client side. An empty keyword list returns
// an empty result without touching the store. An optional filter in opts
// further restricts candidates; its score threshold is ignored since
// keyword relevance has its own zero floor.
//
// Each keyword contributes to the match count once for appearing in the
// text and once for overlapping a trigger phrase, so a keyword can count
// twice. The first keyword found as a whole word in the text adds a fixed
// bonus. The final score is matches over keyword count plus the bonus,
// capped at 1.0.
func (c *Client) SearchByKeywords(ctx context.Context, keywords []string, opts SearchOptions) ([]ScoredDocument, error) {
	ctx, span := observability.TraceVector(ctx, c.collection, "search_keywords")
	defer span.End()

	if len(keywords) == 0 {
		return []ScoredDocument{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	filter := keywordFilter(lowered)
	if len(opts.Filter) > 0 {
		// The keyword clause nests so the caller filter stays a hard
		// requirement while any single keyword match qualifies.
		filter = map[string]interface{}{
			"must": []interface{}{opts.Filter, filter},
		}
	}

	// Over-fetch so client-side scoring has enough candidates to rerank.
	candidates, _, err := c.scrollPage(ctx, scrollRequest{
		Limit:       c.keywordFactor * limit,
		WithPayload: true,
		Filter:      filter,
	})
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredDocument, 0, len(candidates))
	for _, doc := range candidates {
		score := c.scoreKeywordMatch(lowered, doc.Payload)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredDocument{ID: doc.ID, Score: score, Payload: doc.Payload})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	span.SetAttribute("result_count", len(scored))
	return scored, nil
}

// keywordFilter builds the candidate filter: any keyword in the indexed
// text, or any keyword equal to a trigger phrase.
func keywordFilter(keywords []string) map[string]interface{} {
	should := make([]interface{}, 0, len(keywords)+1)
	for _, kw := range keywords {
		should = append(should, map[string]interface{}{
			"key":   searchTextField,
			"match": map[string]interface{}{"text": kw},
		})
	}
	should = append(should, map[string]interface{}{
		"key":   triggersField,
		"match": map[string]interface{}{"any": keywords},
	})
	return map[string]interface{}{"should": should}
}

// scoreKeywordMatch computes the relevance of one candidate. Keywords are
// expected lowercased.
func (c *Client) scoreKeywordMatch(keywords []string, payload map[string]interface{}) float64 {
	searchText := strings.ToLower(stringField(payload, searchTextField))
	triggers := lowerStrings(payload[triggersField])

	matched := 0
	bonus := 0.0
	for _, kw := range keywords {
		if searchText != "" && strings.Contains(searchText, kw) {
			matched++
			if bonus == 0 && matchesWholeWord(searchText, kw) {
				bonus = c.wordBonus
			}
		}
		for _, trigger := range triggers {
			if strings.Contains(trigger, kw) || strings.Contains(kw, trigger) {
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return 0
	}

	relevance := float64(matched)/float64(len(keywords)) + bonus
	if relevance > 1.0 {
		relevance = 1.0
	}
	return relevance
}

func matchesWholeWord(text, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func stringField(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

// lowerStrings converts a decoded JSON array into lowercased strings,
// ignoring non-string entries.
func lowerStrings(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
