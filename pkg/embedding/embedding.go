// Package embedding turns text into vectors. A Provider speaks to one
// backend (OpenAI, Google Vertex AI, Amazon Bedrock, or an in-memory mock);
// the Service wraps a provider with caching and metrics. Provider selection
// follows explicit configuration first, then the EMBEDDING_PROVIDER
// environment variable, then credential detection.
//
// Providers are constructed optimistically: missing credentials never fail
// construction, they mark the provider unavailable so callers can degrade
// to keyword-only search instead of crashing at startup.
package embedding

import "context"

// Provider generates embedding vectors for text.
type Provider interface {
	// GenerateEmbedding generates an embedding for a single text. Empty or
	// whitespace-only input is rejected with an error; a zero vector is
	// never returned as a substitute.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateEmbeddings generates embeddings for a batch of texts. Empty
	// entries are dropped before the request; the result covers the
	// surviving texts in their original order. An all-empty batch returns
	// an empty slice without touching the backend.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// IsAvailable reports whether the provider has what it needs to serve
	// requests, typically credentials.
	IsAvailable() bool

	// Dimensions returns the dimensionality of generated vectors.
	Dimensions() int

	// Model returns the model identifier in use.
	Model() string

	// ProviderType returns the provider name, e.g. "openai".
	ProviderType() string

	// HealthCheck verifies the backend is reachable and usable.
	HealthCheck(ctx context.Context) error
}
