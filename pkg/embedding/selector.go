package embedding

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/clusterkb/clusterkb/pkg/embedding/providers"
	"github.com/clusterkb/clusterkb/pkg/observability"
)

// Config carries everything needed to select and construct a provider.
type Config struct {
	// Provider forces a specific provider ("openai", "google", "bedrock",
	// "mock"). Empty means resolve from the environment.
	Provider string

	// Model and Dimensions override the provider defaults.
	Model      string
	Dimensions int

	// Credentials. Empty fields fall back to the conventional environment
	// variables.
	OpenAIAPIKey    string
	GoogleAPIKey    string
	GoogleProjectID string
	GoogleLocation  string
	Region          string

	// Transport tuning, applied to whichever provider is selected.
	RequestTimeout    time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// ProviderCapability describes what a provider can do.
type ProviderCapability struct {
	SupportsEmbeddings bool
	DefaultModel       string
	EmbeddingModels    []providers.ModelInfo
}

// ProviderCapabilities defines what each provider supports.
var ProviderCapabilities = map[string]ProviderCapability{
	"openai": {
		SupportsEmbeddings: true,
		DefaultModel:       "text-embedding-3-small",
		EmbeddingModels: []providers.ModelInfo{
			{Name: "text-embedding-3-small", Dimensions: 1536, MaxTokens: 8191, CostPer1MTokens: 0.02},
			{Name: "text-embedding-3-large", Dimensions: 3072, MaxTokens: 8191, CostPer1MTokens: 0.13},
			{Name: "text-embedding-ada-002", Dimensions: 1536, MaxTokens: 8191, CostPer1MTokens: 0.10},
		},
	},
	"bedrock": {
		SupportsEmbeddings: true,
		DefaultModel:       "amazon.titan-embed-text-v1",
		EmbeddingModels: []providers.ModelInfo{
			{Name: "amazon.titan-embed-text-v1", Dimensions: 1536, MaxTokens: 8192, CostPer1MTokens: 0.10},
			{Name: "amazon.titan-embed-text-v2:0", Dimensions: 1024, MaxTokens: 8192, CostPer1MTokens: 0.02},
		},
	},
	"google": {
		SupportsEmbeddings: true,
		DefaultModel:       "text-embedding-004",
		EmbeddingModels: []providers.ModelInfo{
			{Name: "text-embedding-004", Dimensions: 768, MaxTokens: 2048, CostPer1MTokens: 0.025},
			{Name: "text-multilingual-embedding-002", Dimensions: 768, MaxTokens: 2048, CostPer1MTokens: 0.025},
		},
	},
	"mock": {
		SupportsEmbeddings: true,
		DefaultModel:       "mock-embedding-v1",
		EmbeddingModels: []providers.ModelInfo{
			{Name: "mock-embedding-v1", Dimensions: providers.DefaultDimensions},
		},
	},
}

// autoDetectionOrder is the preference order when no provider is configured.
var autoDetectionOrder = []string{"openai", "bedrock", "google"}

const fallbackProvider = "openai"

// NewProvider selects and constructs an embedding provider. Resolution
// order: explicit configuration, the EMBEDDING_PROVIDER environment
// variable, detected credentials, and finally OpenAI. An unknown provider
// name logs a warning and falls back rather than failing; the returned
// provider may be unavailable, which callers observe via IsAvailable.
func NewProvider(cfg Config, logger observability.Logger) Provider {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	name := resolveProviderName(cfg, logger)
	provider := construct(name, cfg, logger)

	logger.Info("Embedding provider selected", map[string]interface{}{
		"provider":   provider.ProviderType(),
		"model":      provider.Model(),
		"dimensions": provider.Dimensions(),
		"available":  provider.IsAvailable(),
	})
	return provider
}

func resolveProviderName(cfg Config, logger observability.Logger) string {
	requested := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if requested == "" {
		requested = strings.ToLower(strings.TrimSpace(os.Getenv("EMBEDDING_PROVIDER")))
	}

	if requested != "" {
		if capability, ok := ProviderCapabilities[requested]; ok && capability.SupportsEmbeddings {
			return requested
		}
		logger.Warn("Unknown embedding provider requested; falling back", map[string]interface{}{
			"requested": requested,
			"fallback":  fallbackProvider,
		})
		return fallbackProvider
	}

	detected := detectAvailableProviders(cfg)
	for _, name := range autoDetectionOrder {
		if detected[name] {
			return name
		}
	}
	return fallbackProvider
}

// detectAvailableProviders checks which providers have credentials, from
// either the configuration or the conventional environment variables.
func detectAvailableProviders(cfg Config) map[string]bool {
	available := make(map[string]bool)
	if cfg.OpenAIAPIKey != "" || os.Getenv("OPENAI_API_KEY") != "" {
		available["openai"] = true
	}
	if providers.HasAWSCredentials() {
		available["bedrock"] = true
	}
	googleKey := cfg.GoogleAPIKey
	if googleKey == "" {
		googleKey = os.Getenv("GOOGLE_API_KEY")
	}
	googleProject := cfg.GoogleProjectID
	if googleProject == "" {
		googleProject = os.Getenv("GOOGLE_PROJECT_ID")
	}
	if googleKey != "" && googleProject != "" {
		available["google"] = true
	}
	return available
}

func construct(name string, cfg Config, logger observability.Logger) Provider {
	base := providers.ProviderConfig{
		Model:             cfg.Model,
		Dimensions:        cfg.Dimensions,
		RequestTimeout:    cfg.RequestTimeout,
		MaxRetries:        cfg.MaxRetries,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	switch name {
	case "openai":
		base.APIKey = cfg.OpenAIAPIKey
		if base.APIKey == "" {
			base.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(base, logger)
	case "google":
		base.APIKey = cfg.GoogleAPIKey
		if base.APIKey == "" {
			base.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
		base.ProjectID = cfg.GoogleProjectID
		if base.ProjectID == "" {
			base.ProjectID = os.Getenv("GOOGLE_PROJECT_ID")
		}
		base.Location = cfg.GoogleLocation
		if base.Location == "" {
			base.Location = os.Getenv("GOOGLE_LOCATION")
		}
		return providers.NewGoogleProvider(base, logger)
	case "bedrock":
		base.Region = cfg.Region
		if base.Region == "" {
			base.Region = os.Getenv("AWS_REGION")
		}
		return providers.NewBedrockProvider(base, logger)
	case "mock":
		opts := []providers.MockProviderOption{}
		if cfg.Model != "" {
			opts = append(opts, providers.WithModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, providers.WithDimensions(cfg.Dimensions))
		}
		return providers.NewMockProvider(opts...)
	default:
		// resolveProviderName only emits known names.
		return providers.NewOpenAIProvider(base, logger)
	}
}

// ProviderSummary describes the selection landscape for diagnostics.
func ProviderSummary(cfg Config) string {
	var summary strings.Builder

	summary.WriteString("=== Embedding Provider Configuration ===\n")

	detected := detectAvailableProviders(cfg)
	names := make([]string, 0, len(detected))
	for name := range detected {
		names = append(names, name)
	}
	sort.Strings(names)

	summary.WriteString("\nDetected Providers:\n")
	if len(names) == 0 {
		summary.WriteString("  (none)\n")
	}
	for _, name := range names {
		capability := ProviderCapabilities[name]
		summary.WriteString(fmt.Sprintf("  - %s (default: %s)\n", name, capability.DefaultModel))
	}

	if cfg.Provider != "" {
		summary.WriteString(fmt.Sprintf("\nConfigured Provider: %s\n", cfg.Provider))
		if cfg.Model != "" {
			summary.WriteString(fmt.Sprintf("Configured Model: %s\n", cfg.Model))
		}
	} else if env := os.Getenv("EMBEDDING_PROVIDER"); env != "" {
		summary.WriteString(fmt.Sprintf("\nProvider from environment: %s\n", env))
	} else {
		summary.WriteString("\nUsing auto-detection\n")
	}

	return summary.String()
}
