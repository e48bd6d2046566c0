// Package config loads the clusterkb configuration from an optional YAML
// file and the environment. Environment variables win over file values;
// conventional unprefixed names (QDRANT_URL, OPENAI_API_KEY, REDIS_ADDR)
// are bound as aliases so container deployments need no translation layer.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/clusterkb/clusterkb/pkg/common/errors"
	"github.com/clusterkb/clusterkb/pkg/observability"
)

// StoreConfig holds the vector store backend connection settings
type StoreConfig struct {
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// EmbeddingConfig holds the embedding provider selection and credentials
type EmbeddingConfig struct {
	// Provider selects the backend: openai, google, bedrock, mock.
	// Empty means resolve from environment, falling back to openai.
	Provider          string  `mapstructure:"provider"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	OpenAIAPIKey      string  `mapstructure:"openai_api_key"`
	GoogleAPIKey      string  `mapstructure:"google_api_key"`
	Region            string  `mapstructure:"region"`
	MaxRetries        int     `mapstructure:"max_retries"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// CacheConfig holds the embedding result cache settings. RedisAddr empty
// means the in-memory level runs alone.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
	RedisAddr  string        `mapstructure:"redis_addr"`
}

// Config holds the complete application configuration
type Config struct {
	Environment   string               `mapstructure:"environment"`
	Store         StoreConfig          `mapstructure:"store"`
	Embedding     EmbeddingConfig      `mapstructure:"embedding"`
	Cache         CacheConfig          `mapstructure:"cache"`
	Observability observability.Config `mapstructure:"observability"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Best effort .env load for local development
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("CLUSTERKB_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("CLUSTERKB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	// Conventional names used in Docker environments. Best effort - viper
	// handles errors internally.
	_ = v.BindEnv("store.url", "CLUSTERKB_STORE_URL", "QDRANT_URL")
	_ = v.BindEnv("store.api_key", "CLUSTERKB_STORE_API_KEY", "QDRANT_API_KEY")
	_ = v.BindEnv("embedding.provider", "CLUSTERKB_EMBEDDING_PROVIDER", "EMBEDDING_PROVIDER")
	_ = v.BindEnv("embedding.model", "CLUSTERKB_EMBEDDING_MODEL", "EMBEDDING_MODEL")
	_ = v.BindEnv("embedding.dimensions", "CLUSTERKB_EMBEDDING_DIMENSIONS", "EMBEDDING_DIMENSIONS")
	_ = v.BindEnv("embedding.openai_api_key", "CLUSTERKB_EMBEDDING_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.google_api_key", "CLUSTERKB_EMBEDDING_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("embedding.region", "CLUSTERKB_EMBEDDING_REGION", "AWS_REGION")
	_ = v.BindEnv("cache.redis_addr", "CLUSTERKB_CACHE_REDIS_ADDR", "REDIS_ADDR", "REDIS_ADDRESS")

	if err := v.ReadInConfig(); err != nil {
		// Config file is not required if environment variables are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configFile); !os.IsNotExist(statErr) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	processEnvExpansion(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the loaded values and returns a configuration error on
// the first violation. Construction-time misconfiguration fails fast.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "store.url must not be empty")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "store.timeout must be positive")
	}
	if c.Store.SettleDelay < 0 {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "store.settle_delay must not be negative")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "embedding.dimensions must be positive")
	}
	if c.Embedding.MaxRetries < 0 {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "embedding.max_retries must not be negative")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "embedding.requests_per_second must not be negative")
	}
	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return errors.New("config", "validate", errors.ErrorTypeConfiguration, "cache.max_entries must be positive when the cache is enabled")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	// Store defaults
	v.SetDefault("store.url", "http://localhost:6333")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("store.settle_delay", 50*time.Millisecond)

	// Embedding defaults
	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.openai_api_key", "")
	v.SetDefault("embedding.google_api_key", "")
	v.SetDefault("embedding.region", "")
	v.SetDefault("embedding.max_retries", 2)
	v.SetDefault("embedding.requests_per_second", 0.0)

	// Cache defaults: in-memory level only until a redis address is set
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.redis_addr", "")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.type", "")
	v.SetDefault("observability.metrics.namespace", "clusterkb")
	v.SetDefault("observability.metrics.subsystem", "")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "clusterkb")
	v.SetDefault("observability.tracing.environment", "dev")
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
}

// processEnvExpansion expands ${VAR} and ${VAR:-default} references in
// config file values
func processEnvExpansion(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if value == "" {
			continue
		}
		if strings.Contains(value, "${") && strings.Contains(value, "}") {
			expanded := expandEnvVars(value)
			if expanded != value {
				v.Set(key, expanded)
			}
		}
	}
}

// expandEnvVars expands environment variables in a string
func expandEnvVars(value string) string {
	result := value

	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varRef := result[start+2 : end]

		var envVar, defaultVal string
		if strings.Contains(varRef, ":-") {
			parts := strings.SplitN(varRef, ":-", 2)
			envVar = parts[0]
			defaultVal = parts[1]
		} else {
			envVar = varRef
		}

		envVal := os.Getenv(envVar)
		if envVal == "" && defaultVal != "" {
			envVal = defaultVal
		}

		result = result[:start] + envVal + result[end+1:]
	}

	return result
}
