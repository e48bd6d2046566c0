package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoogleTestServer(t *testing.T, requests *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/test-project/locations/us-central1/publishers/google/models/text-embedding-004:predict", r.URL.Path)
		assert.Equal(t, "Bearer google-key", r.Header.Get("Authorization"))

		var req googleEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type prediction struct {
			Embeddings struct {
				Values []float32 `json:"values"`
			} `json:"embeddings"`
		}
		predictions := make([]prediction, len(req.Instances))
		for i := range req.Instances {
			predictions[i].Embeddings.Values = []float32{float32(i), float32(len(req.Instances[i].Content))}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"predictions": predictions}))
	}))
	t.Cleanup(server.Close)
	return server
}

func googleTestConfig(endpoint string) ProviderConfig {
	return ProviderConfig{
		APIKey:    "google-key",
		ProjectID: "test-project",
		Endpoint:  endpoint,
	}
}

func TestGoogleGenerateEmbedding(t *testing.T) {
	var requests int32
	server := newGoogleTestServer(t, &requests)

	provider := NewGoogleProvider(googleTestConfig(server.URL), nil)

	embedding, err := provider.GenerateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5}, embedding)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestGoogleBatchSendsAllInstances(t *testing.T) {
	var requests int32
	server := newGoogleTestServer(t, &requests)

	provider := NewGoogleProvider(googleTestConfig(server.URL), nil)

	embeddings, err := provider.GenerateEmbeddings(context.Background(), []string{"a", "", "bc"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0, 1}, embeddings[0])
	assert.Equal(t, []float32{1, 2}, embeddings[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "one request covers the whole batch")
}

func TestGoogleAllEmptyBatchSkipsBackend(t *testing.T) {
	var requests int32
	server := newGoogleTestServer(t, &requests)

	provider := NewGoogleProvider(googleTestConfig(server.URL), nil)

	embeddings, err := provider.GenerateEmbeddings(context.Background(), []string{"", "   "})
	require.NoError(t, err)
	assert.Empty(t, embeddings)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
}

func TestGoogleUnavailableWithoutCredentials(t *testing.T) {
	for name, cfg := range map[string]ProviderConfig{
		"NoAPIKey":    {ProjectID: "test-project"},
		"NoProjectID": {APIKey: "google-key"},
		"Nothing":     {},
	} {
		t.Run(name, func(t *testing.T) {
			provider := NewGoogleProvider(cfg, nil)
			assert.False(t, provider.IsAvailable())

			_, err := provider.GenerateEmbedding(context.Background(), "hello")
			require.Error(t, err)

			var provErr *ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, ErrCodeUnavailable, provErr.Code)
		})
	}
}

func TestGoogleEmptyInputRejected(t *testing.T) {
	provider := NewGoogleProvider(googleTestConfig("http://unused"), nil)

	_, err := provider.GenerateEmbedding(context.Background(), "")
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrCodeEmptyInput, provErr.Code)
}

func TestGoogleAPIErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"permission denied"}}`)
	}))
	t.Cleanup(server.Close)

	provider := NewGoogleProvider(googleTestConfig(server.URL), nil)

	_, err := provider.GenerateEmbedding(context.Background(), "hello")
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusForbidden, provErr.StatusCode)
	assert.False(t, provErr.IsRetryable)
	assert.Contains(t, provErr.Message, "permission denied")
}

func TestGoogleRetriesTransientFailures(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"predictions":[{"embeddings":{"values":[0.25,0.75]}}]}`)
	}))
	t.Cleanup(server.Close)

	cfg := googleTestConfig(server.URL)
	cfg.MaxRetries = 2
	cfg.RetryDelayBase = time.Millisecond
	cfg.RetryDelayMax = 2 * time.Millisecond
	provider := NewGoogleProvider(cfg, nil)

	embedding, err := provider.GenerateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.75}, embedding)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGoogleDefaults(t *testing.T) {
	provider := NewGoogleProvider(ProviderConfig{APIKey: "google-key", ProjectID: "test-project"}, nil)
	assert.Equal(t, "text-embedding-004", provider.Model())
	assert.Equal(t, 768, provider.Dimensions())
	assert.Equal(t, "google", provider.ProviderType())
	assert.True(t, provider.IsAvailable())
}

func TestGooglePredictURLUsesRegionalHost(t *testing.T) {
	cfg := ProviderConfig{APIKey: "google-key", ProjectID: "proj", Location: "europe-west4"}
	provider := NewGoogleProvider(cfg, nil)
	assert.Equal(t,
		"https://europe-west4-aiplatform.googleapis.com/v1/projects/proj/locations/europe-west4/publishers/google/models/text-embedding-004:predict",
		provider.predictURL())
}
