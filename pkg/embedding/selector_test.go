package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearProviderEnv blanks every environment variable the selector consults
// so tests see only what they set themselves.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_PROJECT_ID", "")
	t.Setenv("GOOGLE_LOCATION", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("HOME", t.TempDir())
}

func TestNewProviderExplicitConfig(t *testing.T) {
	clearProviderEnv(t)

	provider := NewProvider(Config{Provider: "mock"}, nil)
	assert.Equal(t, "mock", provider.ProviderType())
	assert.True(t, provider.IsAvailable())
}

func TestNewProviderCaseInsensitive(t *testing.T) {
	clearProviderEnv(t)

	provider := NewProvider(Config{Provider: " MOCK "}, nil)
	assert.Equal(t, "mock", provider.ProviderType())
}

func TestNewProviderFromEnvironment(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "mock")

	provider := NewProvider(Config{}, nil)
	assert.Equal(t, "mock", provider.ProviderType())
}

func TestNewProviderUnknownNameFallsBack(t *testing.T) {
	clearProviderEnv(t)

	provider := NewProvider(Config{Provider: "banana"}, nil)
	assert.Equal(t, "openai", provider.ProviderType())
	assert.False(t, provider.IsAvailable(), "fallback provider has no credentials here")
}

func TestNewProviderDetectsOpenAI(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	provider := NewProvider(Config{}, nil)
	assert.Equal(t, "openai", provider.ProviderType())
	assert.True(t, provider.IsAvailable())
}

func TestNewProviderDetectsGoogle(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("GOOGLE_PROJECT_ID", "test-project")

	provider := NewProvider(Config{}, nil)
	assert.Equal(t, "google", provider.ProviderType())
	assert.True(t, provider.IsAvailable())
}

func TestNewProviderPrefersOpenAIOverGoogle(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("GOOGLE_PROJECT_ID", "test-project")

	provider := NewProvider(Config{}, nil)
	assert.Equal(t, "openai", provider.ProviderType())
}

func TestNewProviderDefaultsToOpenAI(t *testing.T) {
	clearProviderEnv(t)

	provider := NewProvider(Config{}, nil)
	assert.Equal(t, "openai", provider.ProviderType())
	assert.False(t, provider.IsAvailable())
}

func TestNewProviderConfigCredentialsDetected(t *testing.T) {
	clearProviderEnv(t)

	provider := NewProvider(Config{OpenAIAPIKey: "sk-from-config"}, nil)
	assert.Equal(t, "openai", provider.ProviderType())
	assert.True(t, provider.IsAvailable())
}

func TestNewProviderAppliesOverridesToMock(t *testing.T) {
	clearProviderEnv(t)

	provider := NewProvider(Config{Provider: "mock", Model: "mock-large", Dimensions: 256}, nil)
	assert.Equal(t, "mock-large", provider.Model())
	assert.Equal(t, 256, provider.Dimensions())
}

func TestProviderSummary(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	summary := ProviderSummary(Config{})
	require.Contains(t, summary, "Detected Providers:")
	assert.Contains(t, summary, "openai")
	assert.Contains(t, summary, "Using auto-detection")

	summary = ProviderSummary(Config{Provider: "mock", Model: "mock-embedding-v1"})
	assert.Contains(t, summary, "Configured Provider: mock")
	assert.Contains(t, summary, "Configured Model: mock-embedding-v1")
}

func TestProviderSummaryNoneDetected(t *testing.T) {
	clearProviderEnv(t)

	summary := ProviderSummary(Config{})
	assert.Contains(t, summary, "(none)")
}
