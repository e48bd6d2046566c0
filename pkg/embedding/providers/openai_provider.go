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
	openAIDefaultEndpoint = "https://api.openai.com/v1"
	openAIDefaultModel    = "text-embedding-3-small"
)

// openAIModels lists the embedding models the provider knows natively.
// Unknown models still work; they fall back to the configured dimensions.
var openAIModels = map[string]ModelInfo{
	"text-embedding-3-small": {
		Name:                       "text-embedding-3-small",
		Dimensions:                 1536,
		MaxTokens:                  8191,
		CostPer1MTokens:            0.02,
		SupportsDimensionReduction: true,
		MinDimensions:              512,
	},
	"text-embedding-3-large": {
		Name:                       "text-embedding-3-large",
		Dimensions:                 3072,
		MaxTokens:                  8191,
		CostPer1MTokens:            0.13,
		SupportsDimensionReduction: true,
		MinDimensions:              256,
	},
	"text-embedding-ada-002": {
		Name:            "text-embedding-ada-002",
		Dimensions:      1536,
		MaxTokens:       8191,
		CostPer1MTokens: 0.10,
	},
}

// OpenAIProvider generates embeddings through the OpenAI REST API.
type OpenAIProvider struct {
	config     ProviderConfig
	endpoint   string
	model      ModelInfo
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     observability.Logger
}

// NewOpenAIProvider creates an OpenAI embedding provider. Construction never
// fails: a missing API key leaves the provider unavailable and every
// generation call returns a PROVIDER_UNAVAILABLE error.
func NewOpenAIProvider(cfg ProviderConfig, logger observability.Logger) *OpenAIProvider {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = openAIDefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	model, ok := openAIModels[cfg.Model]
	if !ok {
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = DefaultDimensions
		}
		model = ModelInfo{Name: cfg.Model, Dimensions: dims}
	}

	if cfg.APIKey == "" {
		logger.Warn("OpenAI provider constructed without API key; generation calls will fail", map[string]interface{}{
			"model": model.Name,
		})
	}

	return &OpenAIProvider{
		config:     cfg,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newRateLimiter(cfg.RequestsPerSecond),
		logger:     logger,
	}
}

// openAIRequest represents the OpenAI embeddings API request.
type openAIRequest struct {
	Input          interface{} `json:"input"`
	Model          string      `json:"model"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
	Dimensions     *int        `json:"dimensions,omitempty"`
	User           string      `json:"user,omitempty"`
}

// openAIResponse represents the OpenAI embeddings API response.
type openAIResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// openAIErrorResponse represents an error from the OpenAI API.
type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

// GenerateEmbedding generates an embedding for a single text. Empty or
// whitespace-only input is rejected.
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, emptyInputError("openai")
	}
	embeddings, err := p.generate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     ErrCodeInvalidResponse,
			Message:  "API returned no embeddings",
		}
	}
	return embeddings[0], nil
}

// GenerateEmbeddings generates embeddings for a batch of texts. Empty and
// whitespace-only entries are dropped before the request; the result covers
// the surviving texts in order. An all-empty batch returns an empty slice
// without calling the API.
func (p *OpenAIProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	filtered := filterEmptyTexts(texts)
	if len(filtered) == 0 {
		return [][]float32{}, nil
	}
	return p.generate(ctx, filtered)
}

func (p *OpenAIProvider) generate(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.IsAvailable() {
		return nil, unavailableError("openai", "API key is not configured")
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

func (p *OpenAIProvider) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := openAIRequest{
		Input:          texts,
		Model:          p.model.Name,
		EncodingFormat: "float",
	}
	if p.config.Dimensions > 0 && p.model.SupportsDimensionReduction && p.config.Dimensions != p.model.Dimensions {
		dims := p.config.Dimensions
		reqBody.Dimensions = &dims
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     ErrCodeRequestFailed,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     ErrCodeRequestFailed,
			Message:  fmt.Sprintf("failed to create request: %v", err),
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	for key, value := range p.config.CustomHeaders {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{
			Provider:    "openai",
			Code:        ErrCodeRequestFailed,
			Message:     fmt.Sprintf("request failed: %v", err),
			IsRetryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Provider:    "openai",
			Code:        ErrCodeRequestFailed,
			Message:     fmt.Sprintf("failed to read response: %v", err),
			IsRetryable: true,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.apiError(resp, respBody)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("failed to parse response: %v", err),
		}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: "openai",
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)),
		}
	}

	// The API reports an index per item; order by it rather than trusting
	// response order.
	embeddings := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, &ProviderError{
				Provider: "openai",
				Code:     ErrCodeInvalidResponse,
				Message:  fmt.Sprintf("embedding index %d out of range", item.Index),
			}
		}
		embeddings[item.Index] = item.Embedding
	}
	return embeddings, nil
}

func (p *OpenAIProvider) apiError(resp *http.Response, body []byte) *ProviderError {
	provErr := &ProviderError{
		Provider:    "openai",
		Code:        "UNKNOWN_ERROR",
		Message:     fmt.Sprintf("API returned status %d", resp.StatusCode),
		StatusCode:  resp.StatusCode,
		IsRetryable: isRetryableStatusCode(resp.StatusCode),
		RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		provErr.Message = errResp.Error.Message
		if errResp.Error.Code != "" {
			provErr.Code = errResp.Error.Code
		} else if errResp.Error.Type != "" {
			provErr.Code = errResp.Error.Type
		}
	}
	return provErr
}

// IsAvailable reports whether the provider has credentials to serve requests.
func (p *OpenAIProvider) IsAvailable() bool {
	return p.config.APIKey != ""
}

// Dimensions returns the dimensionality of generated embeddings.
func (p *OpenAIProvider) Dimensions() int {
	if p.config.Dimensions > 0 && p.model.SupportsDimensionReduction {
		return p.config.Dimensions
	}
	return p.model.Dimensions
}

// Model returns the model identifier in use.
func (p *OpenAIProvider) Model() string {
	return p.model.Name
}

// ProviderType returns the provider name.
func (p *OpenAIProvider) ProviderType() string {
	return "openai"
}

// HealthCheck verifies the provider can serve an embedding request.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	if !p.IsAvailable() {
		return unavailableError("openai", "API key is not configured")
	}
	_, err := p.GenerateEmbedding(ctx, "health check")
	return err
}
