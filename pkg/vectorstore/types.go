package vectorstore

// VectorDocument is a point stored in a collection: an id, an embedding
// vector, and an arbitrary JSON payload. The payload carries the domain
// record plus the searchText and triggers fields the keyword path matches
// against and a hasEmbedding marker.
type VectorDocument struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}

// ScoredDocument is a document returned from a search along with its score.
// Semantic scores come from the backend; keyword scores are computed
// client-side in [0, 1].
type ScoredDocument struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchOptions tunes a similarity search.
type SearchOptions struct {
	Limit          int
	ScoreThreshold float64
	Filter         map[string]interface{}
}

// CollectionStats summarizes a collection.
type CollectionStats struct {
	Name       string `json:"name"`
	PointCount int64  `json:"pointCount"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"`
}

// MustMatch builds an exact-match filter condition on a payload field.
func MustMatch(key string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"key":   key,
		"match": map[string]interface{}{"value": value},
	}
}

// FilterMust combines conditions that all have to hold.
func FilterMust(conditions ...map[string]interface{}) map[string]interface{} {
	must := make([]interface{}, len(conditions))
	for i, condition := range conditions {
		must[i] = condition
	}
	return map[string]interface{}{"must": must}
}
