// Package vectorstore is a Qdrant REST client scoped to one collection. It
// covers the lifecycle the knowledge services need: schema-preserving
// initialization with a full-text index on searchText, upserts, bounded
// concurrent reads, similarity search, and client-side keyword scoring.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	commonerrors "github.com/clusterkb/clusterkb/pkg/common/errors"
	"github.com/clusterkb/clusterkb/pkg/observability"
)

const (
	defaultURL           = "http://localhost:6333"
	defaultTimeout       = 30 * time.Second
	defaultSettleDelay   = 50 * time.Millisecond
	defaultReadPermits   = 100
	defaultKeywordFactor = 3
	defaultWordBonus     = 0.3
)

// Config configures a Client. Collection and Dimensions are required;
// everything else has a default.
type Config struct {
	// URL is the Qdrant REST endpoint.
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Collection is the collection this client operates on.
	Collection string

	// Dimensions is the vector size used when the collection is created.
	Dimensions int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// SettleDelay is slept after deletions so immediately following reads
	// observe them.
	SettleDelay time.Duration

	// ReadPermits bounds concurrent point reads. Bulk readers queue here
	// instead of overwhelming the backend.
	ReadPermits int64

	// KeywordCandidateFactor controls how many candidates a keyword search
	// pulls per requested result before client-side scoring.
	KeywordCandidateFactor int

	// KeywordWordBonus is the one-time bonus for a whole-word match.
	KeywordWordBonus float64
}

// Client talks to one Qdrant collection over REST.
type Client struct {
	baseURL     string
	apiKey      string
	collection  string
	dimensions  int
	settleDelay time.Duration

	keywordFactor int
	wordBonus     float64

	httpClient *http.Client
	readSem    *semaphore.Weighted
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewClient validates cfg and builds a client. It performs no I/O; call
// EnsureCollection before reading or writing points.
func NewClient(cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Client, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	if cfg.Collection == "" {
		return nil, commonerrors.New("vectorstore", "new_client", commonerrors.ErrorTypeConfiguration, "collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, commonerrors.New("vectorstore", "new_client", commonerrors.ErrorTypeConfiguration,
			fmt.Sprintf("dimensions must be positive, got %d", cfg.Dimensions))
	}
	if cfg.SettleDelay < 0 {
		return nil, commonerrors.New("vectorstore", "new_client", commonerrors.ErrorTypeConfiguration, "settle delay cannot be negative")
	}

	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.ReadPermits <= 0 {
		cfg.ReadPermits = defaultReadPermits
	}
	if cfg.KeywordCandidateFactor <= 0 {
		cfg.KeywordCandidateFactor = defaultKeywordFactor
	}
	if cfg.KeywordWordBonus <= 0 {
		cfg.KeywordWordBonus = defaultWordBonus
	}

	return &Client{
		baseURL:       cfg.URL,
		apiKey:        cfg.APIKey,
		collection:    cfg.Collection,
		dimensions:    cfg.Dimensions,
		settleDelay:   cfg.SettleDelay,
		keywordFactor: cfg.KeywordCandidateFactor,
		wordBonus:     cfg.KeywordWordBonus,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		readSem:       semaphore.NewWeighted(cfg.ReadPermits),
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Collection returns the collection this client operates on.
func (c *Client) Collection() string {
	return c.collection
}

// Dimensions returns the vector size the client was configured with.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// HealthCheck verifies the backend answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.doRequestRaw(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return commonerrors.Wrap(err, "vectorstore", "health_check", commonerrors.ErrorTypeStoreOperation, "backend unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return commonerrors.New("vectorstore", "health_check", commonerrors.ErrorTypeStoreOperation,
			fmt.Sprintf("backend unhealthy: %s", resp.Status))
	}
	return nil
}

// settle waits the configured delay so deletions are visible to readers
// that follow immediately.
func (c *Client) settle(ctx context.Context) {
	if c.settleDelay <= 0 {
		return
	}
	select {
	case <-time.After(c.settleDelay):
	case <-ctx.Done():
	}
}

// observe records one backend call in the metrics client.
func (c *Client) observe(operation string, start time.Time, err error) {
	c.metrics.RecordAPIOperation("qdrant", operation, err == nil, time.Since(start).Seconds())
}

// doRequest sends a request and decodes the standard Qdrant JSON envelope.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	resp, err := c.doRequestRaw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &statusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// doRequestRaw sends a request and returns the raw response.
func (c *Client) doRequestRaw(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	return c.httpClient.Do(req)
}

// statusError is a non-2xx backend answer, kept structured so callers can
// inspect the status and body text.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant error (status %d): %s", e.Status, e.Body)
}
