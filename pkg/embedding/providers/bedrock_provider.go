package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/time/rate"

	"github.com/clusterkb/clusterkb/pkg/observability"
)

const (
	bedrockDefaultModel  = "amazon.titan-embed-text-v1"
	bedrockDefaultRegion = "us-east-1"
)

var bedrockModels = map[string]ModelInfo{
	"amazon.titan-embed-text-v1": {
		Name:            "amazon.titan-embed-text-v1",
		Dimensions:      1536,
		MaxTokens:       8192,
		CostPer1MTokens: 0.10,
	},
	"amazon.titan-embed-text-v2:0": {
		Name:            "amazon.titan-embed-text-v2:0",
		Dimensions:      1024,
		MaxTokens:       8192,
		CostPer1MTokens: 0.02,
	},
}

// bedrockInvoker is the slice of the bedrockruntime client the provider
// uses. Tests substitute it.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider generates embeddings through Amazon Bedrock Titan models.
type BedrockProvider struct {
	config  ProviderConfig
	region  string
	model   ModelInfo
	client  bedrockInvoker
	limiter *rate.Limiter
	logger  observability.Logger
}

// NewBedrockProvider creates a Bedrock embedding provider. Construction
// never fails: without resolvable AWS credentials the provider reports
// itself unavailable and skips building the SDK client entirely.
func NewBedrockProvider(cfg ProviderConfig, logger observability.Logger) *BedrockProvider {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Model == "" {
		cfg.Model = bedrockDefaultModel
	}
	region := cfg.Region
	if region == "" {
		region = bedrockDefaultRegion
	}

	model, ok := bedrockModels[cfg.Model]
	if !ok {
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = DefaultDimensions
		}
		model = ModelInfo{Name: cfg.Model, Dimensions: dims}
	}

	p := &BedrockProvider{
		config:  cfg,
		region:  region,
		model:   model,
		limiter: newRateLimiter(cfg.RequestsPerSecond),
		logger:  logger,
	}

	if !HasAWSCredentials() {
		logger.Warn("Bedrock provider constructed without AWS credentials; generation calls will fail", map[string]interface{}{
			"model":  model.Name,
			"region": region,
		})
		return p
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}),
	)
	if err != nil {
		logger.Warn("Failed to load AWS configuration; Bedrock provider unavailable", map[string]interface{}{
			"error":  err.Error(),
			"region": region,
		})
		return p
	}

	p.client = bedrockruntime.NewFromConfig(awsCfg)
	return p
}

// HasAWSCredentials checks the usual AWS credential sources: explicit keys,
// an IAM execution role, a named profile, or a credentials file.
func HasAWSCredentials() bool {
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" {
		return true
	}
	if os.Getenv("AWS_EXECUTION_ENV") != "" || os.Getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI") != "" {
		return true
	}
	if os.Getenv("AWS_PROFILE") != "" {
		return true
	}
	if _, err := os.Stat(os.ExpandEnv("$HOME/.aws/credentials")); err == nil {
		return true
	}
	return false
}

// titanEmbeddingRequest represents a Titan embedding request.
type titanEmbeddingRequest struct {
	InputText string `json:"inputText"`
}

// titanEmbeddingResponse represents a Titan embedding response.
type titanEmbeddingResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// GenerateEmbedding generates an embedding for a single text.
func (p *BedrockProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, emptyInputError("bedrock")
	}
	if !p.IsAvailable() {
		return nil, unavailableError("bedrock", "AWS credentials are not configured")
	}
	if err := waitForLimiter(ctx, p.limiter); err != nil {
		return nil, err
	}

	var result []float32
	err := retryWithBackoff(ctx, p.config, func() error {
		embedding, err := p.invoke(ctx, text)
		if err != nil {
			return err
		}
		result = embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateEmbeddings generates embeddings for a batch of texts. Titan has no
// batch endpoint, so texts are embedded one at a time. Empty entries are
// dropped first; an all-empty batch returns an empty slice without touching
// the backend.
func (p *BedrockProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	filtered := filterEmptyTexts(texts)
	if len(filtered) == 0 {
		return [][]float32{}, nil
	}

	embeddings := make([][]float32, 0, len(filtered))
	for _, text := range filtered {
		embedding, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}

func (p *BedrockProvider) invoke(ctx context.Context, text string) ([]float32, error) {
	requestBody, err := json.Marshal(titanEmbeddingRequest{InputText: text})
	if err != nil {
		return nil, &ProviderError{
			Provider: "bedrock",
			Code:     ErrCodeRequestFailed,
			Message:  fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model.Name),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, &ProviderError{
			Provider:    "bedrock",
			Code:        ErrCodeInvocationError,
			Message:     fmt.Sprintf("model invocation failed: %v", err),
			IsRetryable: isRetryableBedrockError(err),
		}
	}

	var parsed titanEmbeddingResponse
	if err := json.Unmarshal(output.Body, &parsed); err != nil {
		return nil, &ProviderError{
			Provider: "bedrock",
			Code:     ErrCodeInvalidResponse,
			Message:  fmt.Sprintf("failed to parse response: %v", err),
		}
	}
	if len(parsed.Embedding) == 0 {
		return nil, &ProviderError{
			Provider: "bedrock",
			Code:     ErrCodeInvalidResponse,
			Message:  "model returned an empty embedding",
		}
	}
	return parsed.Embedding, nil
}

// isRetryableBedrockError checks for transient Bedrock failures.
func isRetryableBedrockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	retryable := []string{
		"ThrottlingException",
		"ServiceUnavailable",
		"TooManyRequests",
		"RequestTimeout",
		"ModelStreamErrorException",
		"ModelTimeoutException",
	}
	for _, substr := range retryable {
		if strings.Contains(errStr, substr) {
			return true
		}
	}
	return false
}

// IsAvailable reports whether AWS credentials were resolved at construction.
func (p *BedrockProvider) IsAvailable() bool {
	return p.client != nil
}

// Dimensions returns the dimensionality of generated embeddings.
func (p *BedrockProvider) Dimensions() int {
	return p.model.Dimensions
}

// Model returns the model identifier in use.
func (p *BedrockProvider) Model() string {
	return p.model.Name
}

// ProviderType returns the provider name.
func (p *BedrockProvider) ProviderType() string {
	return "bedrock"
}

// HealthCheck verifies Bedrock is reachable with the configured credentials.
// Model-specific errors do not fail the check; credentials that fail
// authentication or a network that cannot reach the service do.
func (p *BedrockProvider) HealthCheck(ctx context.Context) error {
	if !p.IsAvailable() {
		return unavailableError("bedrock", "AWS credentials are not configured")
	}

	requestBody, err := json.Marshal(titanEmbeddingRequest{InputText: "health"})
	if err != nil {
		return fmt.Errorf("failed to marshal health check request: %w", err)
	}

	_, err = p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model.Name),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "AccessDeniedException") ||
			strings.Contains(errStr, "UnauthorizedClient") ||
			strings.Contains(errStr, "UnrecognizedClientException") ||
			strings.Contains(errStr, "ExpiredToken") ||
			strings.Contains(errStr, "InvalidSignature") {
			return fmt.Errorf("bedrock authentication failed: %s", errStr)
		}
		if strings.Contains(errStr, "connection") ||
			strings.Contains(errStr, "timeout") ||
			strings.Contains(errStr, "network") {
			return fmt.Errorf("bedrock connectivity issue: %s", errStr)
		}
		p.logger.Debug("Bedrock health check saw a model-level error; treating service as reachable", map[string]interface{}{
			"error": errStr,
		})
	}
	return nil
}
