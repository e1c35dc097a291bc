// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.orgpedia/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - LLM: provider selection, chat model, sampling options
//   - Embedding: embedder model and vector dimension
//   - Index: the single canonical document index name used by both
//     ingestion and query-time search
//   - Storage: PostgreSQL connection (see storage.go)
//   - Auth: JWT signing secret
//
// Validation uses sentinel errors so callers can branch with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the chat provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the chat model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidOllamaHost indicates the Ollama host URL is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbeddingDims indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDims = errors.New("invalid embedding dimension")

	// ErrInvalidIndexName indicates the index name is not a safe identifier.
	ErrInvalidIndexName = errors.New("invalid index name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")
)

// Chat provider identifiers used in Config.Provider. The provider set is
// closed; adding a backend means adding a constant here and a variant in
// internal/llm.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	// DefaultEmbedderModel matches the nomic-embed-text embedding endpoint.
	DefaultEmbedderModel = "nomic-embed-text"

	// DefaultEmbeddingDims is the nomic-embed-text output dimension. The
	// index schema must agree with this value; see internal/index.
	DefaultEmbeddingDims = 768

	// DefaultIndexName is the canonical document index. Ingestion and
	// query-time search both resolve the name from here — there is exactly
	// one knob.
	DefaultIndexName = "org_pedia"

	// MaxEmbeddingDims bounds the configurable vector width.
	MaxEmbeddingDims = 4096

	// MinJWTSecretLen is the minimum accepted secret length.
	MinJWTSecretLen = 32
)

// indexNamePattern restricts index names to safe SQL identifiers, since the
// index name becomes a table name.
var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Config stores application configuration.
type Config struct {
	// HTTP server
	Addr string `mapstructure:"addr"`

	// Chat provider and model configuration
	Provider    string  `mapstructure:"provider"`   // "ollama" (default) or "openai"
	ModelName   string  `mapstructure:"model_name"` // e.g. "llama3.2", "gpt-4o"
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Ollama configuration (chat and embeddings)
	OllamaHost string `mapstructure:"ollama_host"`

	// OpenAI configuration (only used when provider is "openai")
	OpenAIAPIKey string `mapstructure:"openai_api_key"` // SENSITIVE

	// Embedding configuration
	EmbedderModel string `mapstructure:"embedder_model"`
	EmbeddingDims int    `mapstructure:"embedding_dims"`

	// Document index name (single canonical name for ingest and search)
	IndexName string `mapstructure:"index_name"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Auth configuration
	JWTSecret string `mapstructure:"jwt_secret"` // SENSITIVE
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(home, ".orgpedia"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8000")

	// Chat defaults match the Ollama llama3.2 setup.
	v.SetDefault("provider", ProviderOllama)
	v.SetDefault("model_name", "llama3.2")
	v.SetDefault("temperature", 0.9)
	v.SetDefault("max_tokens", 2000)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Embedding defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedding_dims", DefaultEmbeddingDims)

	// Index defaults
	v.SetDefault("index_name", DefaultIndexName)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "orgpedia")
	v.SetDefault("postgres_password", "orgpedia_dev_password")
	v.SetDefault("postgres_db_name", "orgpedia")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever read from the environment in deployments.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "ORGPEDIA_ADDR")
	mustBind("provider", "ORGPEDIA_PROVIDER")
	mustBind("model_name", "ORGPEDIA_MODEL_NAME")
	mustBind("ollama_host", "ORGPEDIA_OLLAMA_HOST")
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("embedder_model", "ORGPEDIA_EMBEDDER_MODEL")
	mustBind("embedding_dims", "ORGPEDIA_EMBEDDING_DIMS")
	mustBind("index_name", "ORGPEDIA_INDEX_NAME")
	mustBind("jwt_secret", "JWT_SECRET_KEY")
}

// Validate checks the full configuration for the serve command.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must be an http(s) URL", ErrInvalidOllamaHost, c.OllamaHost)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidProvider, c.Provider, ProviderOllama, ProviderOpenAI)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.EmbeddingDims < 1 || c.EmbeddingDims > MaxEmbeddingDims {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidEmbeddingDims, c.EmbeddingDims, MaxEmbeddingDims)
	}
	if !indexNamePattern.MatchString(c.IndexName) {
		return fmt.Errorf("%w: %q (lowercase letters, digits, underscores)", ErrInvalidIndexName, c.IndexName)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("%w: set JWT_SECRET_KEY", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("%w: need at least %d characters", ErrInvalidJWTSecret, MinJWTSecretLen)
	}

	return nil
}
