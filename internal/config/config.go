// Package config provides configuration loading for baseline.
//
// Configuration is read from an optional YAML file and overridden by
// BASELINE_-prefixed environment variables. Missing values fall back to
// the defaults in Default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete baseline configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Memory        MemoryConfig        `koanf:"memory"`
	Ingestion     IngestionConfig     `koanf:"ingestion"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	NATS          NATSConfig          `koanf:"nats"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	APIKey     Secret        `koanf:"api_key"`
	UseTLS     bool          `koanf:"use_tls"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// VectorStoreConfig selects the index backend.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem".
	Provider        string `koanf:"provider"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "gemini", "tei", "openai", "fastembed" or "hash".
	Provider  string        `koanf:"provider"`
	Model     string        `koanf:"model"`
	BaseURL   string        `koanf:"base_url"`
	APIKey    Secret        `koanf:"api_key"`
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
	// RateLimit is the sustained number of embedding calls per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	CacheDir  string  `koanf:"cache_dir"`
}

// MemoryConfig holds collection names and search defaults.
type MemoryConfig struct {
	ProgressCollection     string `koanf:"progress_collection"`
	ConversationCollection string `koanf:"conversation_collection"`
	DefaultSearchLimit     int    `koanf:"default_search_limit"`
}

// IngestionConfig controls bulk ingestion.
type IngestionConfig struct {
	// FailurePolicy is "abort" or "partial".
	FailurePolicy    string `koanf:"failure_policy"`
	MinMessageLength int    `koanf:"min_message_length"`
	MaxTextLength    int    `koanf:"max_text_length"`
	Concurrency      int    `koanf:"concurrency"`
}

// SecretsConfig controls redaction of credentials in stored text.
// Redaction is on unless Disabled is set.
type SecretsConfig struct {
	Disabled      bool   `koanf:"disabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// NATSConfig configures memory event publishing.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TemporalConfig configures the durable ingestion workflow client.
type TemporalConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// Ingestion failure policies.
const (
	FailurePolicyAbort   = "abort"
	FailurePolicyPartial = "partial"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.Qdrant.Host == "" {
			return errors.New("qdrant host required when vectorstore provider is qdrant")
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
		}
	case "chromem":
	default:
		return fmt.Errorf("unknown vectorstore provider %q (want qdrant or chromem)", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "gemini":
		if !c.Embeddings.APIKey.IsSet() {
			return errors.New("embeddings provider gemini requires api_key")
		}
	case "openai":
		// A base_url without a key targets a local OpenAI-compatible server.
		if !c.Embeddings.APIKey.IsSet() && c.Embeddings.BaseURL == "" {
			return errors.New("embeddings provider openai requires api_key or base_url")
		}
	case "tei":
		if c.Embeddings.BaseURL == "" {
			return errors.New("embeddings provider tei requires base_url")
		}
	case "fastembed", "hash":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.Timeout <= 0 {
		return errors.New("embeddings timeout must be positive")
	}
	if c.Embeddings.RateLimit < 0 {
		return errors.New("embeddings rate_limit cannot be negative")
	}

	if c.Memory.ProgressCollection == "" || c.Memory.ConversationCollection == "" {
		return errors.New("memory collection names are required")
	}
	if c.Memory.ProgressCollection == c.Memory.ConversationCollection {
		return errors.New("progress and conversation collections must differ")
	}

	switch c.Ingestion.FailurePolicy {
	case FailurePolicyAbort, FailurePolicyPartial:
	default:
		return fmt.Errorf("unknown ingestion failure_policy %q (want abort or partial)", c.Ingestion.FailurePolicy)
	}
	if c.Ingestion.Concurrency < 1 {
		return fmt.Errorf("ingestion concurrency must be >= 1, got %d", c.Ingestion.Concurrency)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		return errors.New("temporal host_port required when temporal is enabled")
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.Observability.LogFormat)
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.Observability.SamplingRate)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Timeout == 0 {
		cfg.Qdrant.Timeout = 10 * time.Second
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "qdrant"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "gemini"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = defaultModelFor(cfg.Embeddings.Provider)
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 768
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}
	if cfg.Embeddings.RateBurst == 0 {
		cfg.Embeddings.RateBurst = 10
	}

	if cfg.Memory.ProgressCollection == "" {
		cfg.Memory.ProgressCollection = "user_progress"
	}
	if cfg.Memory.ConversationCollection == "" {
		cfg.Memory.ConversationCollection = "chat_data"
	}
	if cfg.Memory.DefaultSearchLimit == 0 {
		cfg.Memory.DefaultSearchLimit = 5
	}

	if cfg.Ingestion.FailurePolicy == "" {
		cfg.Ingestion.FailurePolicy = FailurePolicyAbort
	}
	if cfg.Ingestion.MinMessageLength == 0 {
		cfg.Ingestion.MinMessageLength = 50
	}
	if cfg.Ingestion.MaxTextLength == 0 {
		cfg.Ingestion.MaxTextLength = 16000
	}
	if cfg.Ingestion.Concurrency == 0 {
		cfg.Ingestion.Concurrency = 4
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "baseline.events"
	}

	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "baseline-ingest"
	}

	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "baseline"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
}

func defaultModelFor(provider string) string {
	switch provider {
	case "gemini":
		return "text-embedding-004"
	case "openai":
		return "text-embedding-3-small"
	case "tei", "fastembed":
		return "BAAI/bge-base-en-v1.5"
	default:
		return "hash-v1"
	}
}
