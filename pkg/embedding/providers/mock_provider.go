package providers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockProvider is an in-memory embedding provider for tests and local
// development. Embeddings are deterministic per input text.
type MockProvider struct {
	mu               sync.RWMutex
	model            string
	dimensions       int
	available        bool
	failureRate      float64
	latency          time.Duration
	requestCount     int
	failAfterCount   int
	generateErr      error
	healthCheckError error

	generateCalls []string
	batchCalls    [][]string
}

// MockProviderOption configures a MockProvider.
type MockProviderOption func(*MockProvider)

// WithFailureRate sets the failure rate (0.0 to 1.0).
func WithFailureRate(rate float64) MockProviderOption {
	return func(m *MockProvider) {
		m.failureRate = rate
	}
}

// WithLatency sets the simulated latency.
func WithLatency(latency time.Duration) MockProviderOption {
	return func(m *MockProvider) {
		m.latency = latency
	}
}

// WithFailAfter causes failures after N requests.
func WithFailAfter(count int) MockProviderOption {
	return func(m *MockProvider) {
		m.failAfterCount = count
	}
}

// WithHealthCheckError sets a health check error.
func WithHealthCheckError(err error) MockProviderOption {
	return func(m *MockProvider) {
		m.healthCheckError = err
	}
}

// WithDimensions sets the embedding dimensionality.
func WithDimensions(dimensions int) MockProviderOption {
	return func(m *MockProvider) {
		m.dimensions = dimensions
	}
}

// WithModel sets the reported model name.
func WithModel(model string) MockProviderOption {
	return func(m *MockProvider) {
		m.model = model
	}
}

// WithUnavailable marks the provider unavailable, mimicking missing
// credentials.
func WithUnavailable() MockProviderOption {
	return func(m *MockProvider) {
		m.available = false
	}
}

// WithGenerateError makes every generation call fail with err.
func WithGenerateError(err error) MockProviderOption {
	return func(m *MockProvider) {
		m.generateErr = err
	}
}

// NewMockProvider creates a mock provider. It is available by default and
// produces unit-normalized vectors seeded by the input text.
func NewMockProvider(opts ...MockProviderOption) *MockProvider {
	m := &MockProvider{
		model:      "mock-embedding-v1",
		dimensions: DefaultDimensions,
		available:  true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateEmbedding generates a deterministic embedding for text.
func (m *MockProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, emptyInputError("mock")
	}

	m.mu.Lock()
	m.generateCalls = append(m.generateCalls, text)
	m.requestCount++
	count := m.requestCount
	m.mu.Unlock()

	if err := m.simulate(ctx, count); err != nil {
		return nil, err
	}
	return m.mockEmbedding(text), nil
}

// GenerateEmbeddings generates deterministic embeddings for a batch. Empty
// entries are dropped first; an all-empty batch returns an empty slice and
// is not counted as a backend call.
func (m *MockProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	filtered := filterEmptyTexts(texts)
	if len(filtered) == 0 {
		return [][]float32{}, nil
	}

	m.mu.Lock()
	m.batchCalls = append(m.batchCalls, filtered)
	m.requestCount++
	count := m.requestCount
	m.mu.Unlock()

	if err := m.simulate(ctx, count); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(filtered))
	for i, text := range filtered {
		embeddings[i] = m.mockEmbedding(text)
	}
	return embeddings, nil
}

// simulate applies the configured latency and failure behavior.
func (m *MockProvider) simulate(ctx context.Context, requestNumber int) error {
	if !m.available {
		return unavailableError("mock", "provider configured as unavailable")
	}
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.generateErr != nil {
		return m.generateErr
	}
	if m.failAfterCount > 0 && requestNumber > m.failAfterCount {
		return &ProviderError{
			Provider:    "mock",
			Code:        ErrCodeRequestFailed,
			Message:     fmt.Sprintf("simulated failure after %d requests", m.failAfterCount),
			IsRetryable: true,
		}
	}
	if m.failureRate > 0 && rand.Float64() < m.failureRate {
		return &ProviderError{
			Provider:    "mock",
			Code:        ErrCodeRequestFailed,
			Message:     "simulated random failure",
			IsRetryable: true,
		}
	}
	return nil
}

// mockEmbedding builds a deterministic unit vector seeded by the text.
func (m *MockProvider) mockEmbedding(text string) []float32 {
	embedding := make([]float32, m.dimensions)

	hash := 0
	for _, ch := range text {
		hash = hash*31 + int(ch)
	}
	r := rand.New(rand.NewSource(int64(hash)))

	for i := 0; i < m.dimensions; i++ {
		base := r.Float64()*2 - 1
		wave1 := math.Sin(float64(i) * 0.1)
		wave2 := math.Cos(float64(i) * 0.05)
		embedding[i] = float32(base*0.7 + wave1*0.2 + wave2*0.1)
	}

	var sum float32
	for _, val := range embedding {
		sum += val * val
	}
	magnitude := float32(math.Sqrt(float64(sum)))
	if magnitude > 0 {
		for i := range embedding {
			embedding[i] /= magnitude
		}
	}
	return embedding
}

// IsAvailable reports the configured availability.
func (m *MockProvider) IsAvailable() bool {
	return m.available
}

// Dimensions returns the embedding dimensionality.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// Model returns the reported model name.
func (m *MockProvider) Model() string {
	return m.model
}

// ProviderType returns the provider name.
func (m *MockProvider) ProviderType() string {
	return "mock"
}

// HealthCheck returns the configured health check error, if any.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	if !m.available {
		return unavailableError("mock", "provider configured as unavailable")
	}
	return m.healthCheckError
}

// GenerateCallCount reports how many single-text generations were requested.
func (m *MockProvider) GenerateCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.generateCalls)
}

// BatchCallCount reports how many batch generations were requested.
func (m *MockProvider) BatchCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.batchCalls)
}

// GeneratedTexts returns every text passed to GenerateEmbedding, in order.
func (m *MockProvider) GeneratedTexts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.generateCalls))
	copy(out, m.generateCalls)
	return out
}

// BatchTexts returns the filtered texts of every batch call, in order.
func (m *MockProvider) BatchTexts() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.batchCalls))
	for i, batch := range m.batchCalls {
		out[i] = append([]string(nil), batch...)
	}
	return out
}
