package search

import (
	"context"

	"github.com/clusterkb/clusterkb/pkg/vectorstore"
)

// Mapper converts between a domain type and its stored representation.
// The service owns the searchText and triggers payload fields; a mapper's
// Payload does not need to include them and must not rely on them.
type Mapper[T any] interface {
	// ID returns the stable document ID for an item.
	ID(item T) string

	// SearchText returns the text that is embedded and keyword-indexed
	// for an item.
	SearchText(item T) string

	// Triggers returns short activation phrases matched during keyword
	// search, or nil when the type has none.
	Triggers(item T) []string

	// Payload converts an item to its stored payload.
	Payload(item T) (map[string]interface{}, error)

	// FromPayload rebuilds an item from a stored payload.
	FromPayload(id string, payload map[string]interface{}) (T, error)
}

// Store is the vector store surface the service needs. *vectorstore.Client
// satisfies it.
type Store interface {
	EnsureCollection(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Upsert(ctx context.Context, docs []vectorstore.VectorDocument) error
	Get(ctx context.Context, id string) (*vectorstore.VectorDocument, error)
	Delete(ctx context.Context, ids ...string) error
	DeleteAll(ctx context.Context) error
	List(ctx context.Context, filter map[string]interface{}, limit int) ([]vectorstore.VectorDocument, error)
	Count(ctx context.Context) (int64, error)
	SearchSimilar(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.ScoredDocument, error)
	SearchByKeywords(ctx context.Context, keywords []string, opts vectorstore.SearchOptions) ([]vectorstore.ScoredDocument, error)
	Collection() string
	Dimensions() int
}

var _ Store = (*vectorstore.Client)(nil)
