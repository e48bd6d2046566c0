package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// DefaultDimensions is the embedding dimensionality assumed when neither the
// model nor the configuration pins one. All bundled default models produce
// vectors of this size so collections stay compatible across providers.
const DefaultDimensions = 1536

// Common ProviderError codes. Providers may also pass through API-specific
// codes verbatim (e.g. OpenAI's "insufficient_quota").
const (
	ErrCodeEmptyInput      = "EMPTY_INPUT"
	ErrCodeUnavailable     = "PROVIDER_UNAVAILABLE"
	ErrCodeRequestFailed   = "REQUEST_FAILED"
	ErrCodeInvalidResponse = "INVALID_RESPONSE"
	ErrCodeInvocationError = "INVOCATION_ERROR"
)

// ProviderConfig contains common configuration for providers.
type ProviderConfig struct {
	// API credentials
	APIKey string `json:"api_key,omitempty"`

	// Endpoints and regions
	Endpoint  string `json:"endpoint,omitempty"`
	Region    string `json:"region,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Location  string `json:"location,omitempty"`

	// Model selection
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`

	// Rate limiting. Zero means unlimited.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`

	// Timeouts
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`

	// Retry configuration
	MaxRetries     int           `json:"max_retries,omitempty"`
	RetryDelayBase time.Duration `json:"retry_delay_base,omitempty"`
	RetryDelayMax  time.Duration `json:"retry_delay_max,omitempty"`

	// Custom headers or parameters
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
}

// ModelInfo contains information about an embedding model.
type ModelInfo struct {
	Name                       string  `json:"name"`
	Dimensions                 int     `json:"dimensions"`
	MaxTokens                  int     `json:"max_tokens"`
	CostPer1MTokens            float64 `json:"cost_per_1m_tokens"`
	SupportsDimensionReduction bool    `json:"supports_dimension_reduction"`
	MinDimensions              int     `json:"min_dimensions,omitempty"`
}

// ProviderError represents an error from a provider.
type ProviderError struct {
	Provider    string         `json:"provider"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	StatusCode  int            `json:"status_code,omitempty"`
	RetryAfter  *time.Duration `json:"retry_after,omitempty"`
	IsRetryable bool           `json:"is_retryable"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error [%s]: %s", e.Provider, e.Code, e.Message)
}

// emptyInputError reports blank input for the given provider. Callers must
// reject empty text before reaching the backend; a zero vector is never a
// valid substitute for an embedding.
func emptyInputError(provider string) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        ErrCodeEmptyInput,
		Message:     "input text is empty",
		IsRetryable: false,
	}
}

// unavailableError reports that the provider has no usable credentials.
func unavailableError(provider, reason string) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		Code:        ErrCodeUnavailable,
		Message:     reason,
		IsRetryable: false,
	}
}

// isRetryableStatusCode returns true for HTTP statuses worth retrying.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses a Retry-After header value, which is either a
// number of seconds or an HTTP date.
func parseRetryAfter(header string) *time.Duration {
	if header == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d > 0 {
			return &d
		}
	}
	return nil
}

// filterEmptyTexts drops texts that are empty or whitespace-only and reports
// the surviving values in their original order.
func filterEmptyTexts(texts []string) []string {
	filtered := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			filtered = append(filtered, text)
		}
	}
	return filtered
}

// newRateLimiter builds a limiter for the configured request rate, or nil
// when the rate is unlimited.
func newRateLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// waitForLimiter blocks until the limiter grants a slot. A nil limiter
// grants immediately.
func waitForLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// retryWithBackoff runs op with exponential backoff. A *ProviderError with
// IsRetryable=false stops the retries immediately; anything else is retried
// up to cfg.MaxRetries times.
func retryWithBackoff(ctx context.Context, cfg ProviderConfig, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	if cfg.RetryDelayBase > 0 {
		b.InitialInterval = cfg.RetryDelayBase
	}
	b.RandomizationFactor = 0.5
	b.Multiplier = 1.5
	b.MaxInterval = 5 * time.Second
	if cfg.RetryDelayMax > 0 {
		b.MaxInterval = cfg.RetryDelayMax
	}
	b.MaxElapsedTime = 0
	b.Reset()

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		var provErr *ProviderError
		if errors.As(err, &provErr) && !provErr.IsRetryable {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx))
}
