package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/clusterkb/clusterkb/pkg/observability"
)

const (
	googleDefaultModel    = "text-embedding-004"
	googleDefaultLocation = "us-central1"
)

var googleModels = map[string]ModelInfo{
	"text-embedding-004": {
		Name:            "text-embedding-004",
		Dimensions:      768,
		MaxTokens:       2048,
		CostPer1MTokens: 0.025,
	},
	"text-multilingual-embedding-002": {
		Name:            "text-multilingual-embedding-002",
		Dimensions:      768,
		MaxTokens:       2048,
		CostPer1MTokens: 0.025,
	},
}

// GoogleProvider generates embeddings through the Google Vertex AI predict
// API.
type GoogleProvider struct {
	config     ProviderConfig
	location   string
	model      ModelInfo
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     observability.Logger
}

// NewGoogleProvider creates a Vertex AI embedding provider. Construction
// never fails: without an API key and project ID the provider reports itself
// unavailable.
func NewGoogleProvider(cfg ProviderConfig, logger observability.Logger) *GoogleProvider {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Model == "" {
		cfg.Model = googleDefaultModel
	}
	location := cfg.Location
	if location == "" {
		location = googleDefaultLocation
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	model, ok := googleModels[cfg.Model]
	if !ok {
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = DefaultDimensions
		}
		model = ModelInfo{Name: cfg.Model, Dimensions: dims}
	}

	if cfg.APIKey == "" || cfg.ProjectID == "" {
		logger.Warn("Google provider constructed without credentials; generation calls will fail", map[string]interface{}{
			"model":       model.Name,
			"has_api_key": cfg.APIKey != "",
			"has_project": cfg.ProjectID != "",
		})
	}

	return &GoogleProvider{
		config:     cfg,
		location:   location,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newRateLimiter(cfg.RequestsPerSecond),
		logger:     logger,
	}
}

// googleEmbedRequest represents the Vertex AI predict request.
type googleEmbedRequest struct {
	Instances []googleInstance `json:"instances"`
}

type googleInstance struct {
	Content string `json:"content"`
}

// googleEmbedResponse represents the Vertex AI predict response.
type googleEmbedResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// predictURL builds the model endpoint. cfg.Endpoint overrides the regional
// host, which keeps the URL shape testable.
func (p *GoogleProvider) predictURL() string {
	base := p.config.Endpoint
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", p.location)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		strings.TrimSuffix(base, "/"), p.config.ProjectID, p.location, p.model.Name)
}

// GenerateEmbedding generates an embedding for a single text.
func (p *GoogleProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, emptyInputError("google")
	}
	embeddings, err := p.generate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ProviderError{
			Provider: "google",
			Code:     ErrCodeInvalidResponse,
			Message:  "API returned no predictions",
		}
	}
	return embeddings[0], nil
}

// GenerateEmbeddings generates embeddings for a batch of texts. Empty
// entries are dropped first; an all-empty batch returns an empty slice
// without calling the API.
func (p *GoogleProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	filtered := filterEmptyTexts(texts)
	if len(filtered) == 0 {
		return [][]float32{}, nil
	}
	return p.generate(ctx, filtered)
}

func (p *GoogleProvider) generate(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.IsAvailable() {
		return nil, unavailableError("google", "API key or project ID is not configured")
	}
	if err := waitForLimiter(ctx, p.limiter); err != nil {
		return nil, err
	}

	var result [][]float32
	err := retryWithBackoff(ctx, p.config, func() error {
		embeddings, err := p.doRequest(ctx, texts)
		if err != nil {
			return err
		}
		result = embeddings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *GoogleProvider) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	instances := make([]googleInstance, len(texts))
	for i, text := range texts {
		instances[i] = googleInstance{Content: text}
	}
	body, err := json.Marshal(googleEmbedRequest{Instances: instances})
	if err != nil {
		return nil, &ProviderError{
			Provider: "google",
			Code:     ErrCodeRequestFailed,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.predictURL(), bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{
			Provider: "google",
			Code:     ErrCodeRequestFailed,
			Message:  fmt.Sprintf("failed to create request: %v", err),
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{
			Provider:    "google",
			Code:        ErrCodeRequestFailed,
			Message:     fmt.Sprintf("request failed: %v", err),
			IsRetryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Provider:    "google",
			Code:        ErrCodeRequestFailed,
			Message:     fmt.Sprintf("failed to read response: %v", err),
			IsRetryable: true,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider:    "google",
			Code:        ErrCodeRequestFailed,
			Message:     fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			StatusCode:  resp.StatusCode,
			IsRetryable: isRetryableStatusCode(resp.StatusCode),
			RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var parsed googleEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{
			Provider: "google",
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("failed to parse response: %v", err),
		}
	}
	if len(parsed.Predictions) != len(texts) {
		return nil, &ProviderError{
			Provider: "google",
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("expected %d predictions, got %d", len(texts), len(parsed.Predictions)),
		}
	}

	embeddings := make([][]float32, len(parsed.Predictions))
	for i, prediction := range parsed.Predictions {
		if len(prediction.Embeddings.Values) == 0 {
			return nil, &ProviderError{
				Provider: "google",
				Code:     ErrCodeInvalidResponse,
				Message:  fmt.Sprintf("prediction %d has no embedding values", i),
			}
		}
		embeddings[i] = prediction.Embeddings.Values
	}
	return embeddings, nil
}

// IsAvailable reports whether the provider has credentials to serve requests.
func (p *GoogleProvider) IsAvailable() bool {
	return p.config.APIKey != "" && p.config.ProjectID != ""
}

// Dimensions returns the dimensionality of generated embeddings.
func (p *GoogleProvider) Dimensions() int {
	return p.model.Dimensions
}

// Model returns the model identifier in use.
func (p *GoogleProvider) Model() string {
	return p.model.Name
}

// ProviderType returns the provider name.
func (p *GoogleProvider) ProviderType() string {
	return "google"
}

// HealthCheck verifies the provider can serve an embedding request.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	if !p.IsAvailable() {
		return unavailableError("google", "API key or project ID is not configured")
	}
	_, err := p.GenerateEmbedding(ctx, "health check")
	return err
}
