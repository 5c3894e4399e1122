package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	IndexBackendLocal  = "local"
	IndexBackendQdrant = "qdrant"

	SessionStoreMemory   = "memory"
	SessionStorePostgres = "postgres"
)

type Config struct {
	APIPort   string
	LogLevel  string
	LogFormat string

	DataDir      string
	IndexDir     string
	IndexBackend string
	IndexWatch   bool

	ChunkSize    int
	ChunkOverlap int
	TopK         int

	LLMURL          string
	LLMAPIKey       string
	EmbeddingModel  string
	ChatModel       string
	ChatTemperature float64
	LLMTimeout      time.Duration

	EmbedBatchSize   int
	EmbedConcurrency int

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	SessionStore string
	PostgresDSN  string

	EmbedCacheRedisURL string
	EmbedCacheTTL      time.Duration

	NATSURL            string
	NATSRebuildSubject string
	NATSRebuiltSubject string

	QdrantURL        string
	QdrantCollection string

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration

	WorkerMetricsPort string

	OTelEnabled    bool
	OTelEndpoint   string
	OTelSampleRate float64
}

// Load reads the process environment and the optional CONFIG_FILE.
func Load() (Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads configuration through v so callers can bind CLI flags first.
// Precedence: bound flags, environment, CONFIG_FILE, built-in defaults.
func LoadFrom(v *viper.Viper) (Config, error) {
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		APIPort:   envString(v, "api_port", "8080"),
		LogLevel:  envString(v, "log_level", "info"),
		LogFormat: envString(v, "log_format", "json"),

		DataDir:      envString(v, "data_dir", "data"),
		IndexDir:     envString(v, "index_dir", "."),
		IndexBackend: strings.ToLower(envString(v, "index_backend", IndexBackendLocal)),
		IndexWatch:   envBool(v, "index_watch", false),

		ChunkSize:    envInt(v, "chunk_size", 800),
		ChunkOverlap: envInt(v, "chunk_overlap", 300),
		TopK:         envInt(v, "top_k", 4),

		LLMURL:          envString(v, "llm_url", "http://localhost:11434"),
		LLMAPIKey:       envString(v, "llm_api_key", ""),
		EmbeddingModel:  envString(v, "embedding_model", "nomic-embed-text"),
		ChatModel:       envString(v, "chat_model", "llama3.1:8b"),
		ChatTemperature: envFloat(v, "chat_temperature", 0.3),
		LLMTimeout:      envDuration(v, "llm_timeout", 60*time.Second),

		EmbedBatchSize:   envInt(v, "embed_batch_size", 32),
		EmbedConcurrency: envInt(v, "embed_concurrency", 2),

		RetryMaxAttempts:    envInt(v, "retry_max_attempts", 3),
		RetryInitialBackoff: envDuration(v, "retry_initial_backoff", 200*time.Millisecond),
		RetryMaxBackoff:     envDuration(v, "retry_max_backoff", 2*time.Second),

		SessionStore: strings.ToLower(envString(v, "session_store", SessionStoreMemory)),
		PostgresDSN:  envString(v, "postgres_dsn", ""),

		EmbedCacheRedisURL: envString(v, "embed_cache_redis_url", ""),
		EmbedCacheTTL:      envDuration(v, "embed_cache_ttl", 24*time.Hour),

		NATSURL:            envString(v, "nats_url", ""),
		NATSRebuildSubject: envString(v, "nats_rebuild_subject", "campus.index.rebuild"),
		NATSRebuiltSubject: envString(v, "nats_rebuilt_subject", "campus.index.rebuilt"),

		QdrantURL:        envString(v, "qdrant_url", "http://localhost:6333"),
		QdrantCollection: envString(v, "qdrant_collection", "campus_chunks"),

		APIRateLimitRPS:     envFloat(v, "api_rate_limit_rps", 0),
		APIRateLimitBurst:   envInt(v, "api_rate_limit_burst", 5),
		APIMaxInFlight:      envInt(v, "api_max_in_flight", 16),
		APIBackpressureWait: envDuration(v, "api_backpressure_wait", 250*time.Millisecond),

		WorkerMetricsPort: envString(v, "worker_metrics_port", "9090"),

		OTelEnabled:    envBool(v, "otel_enabled", false),
		OTelEndpoint:   envString(v, "otel_endpoint", "localhost:4317"),
		OTelSampleRate: envFloat(v, "otel_sample_rate", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TurnTimeout bounds one chat turn: an embed call and a generate call, each
// retried up to RetryMaxAttempts times with backoff in between.
func (c Config) TurnTimeout() time.Duration {
	attempts := max(c.RetryMaxAttempts, 1)
	perCall := time.Duration(attempts)*c.LLMTimeout + time.Duration(attempts-1)*c.RetryMaxBackoff
	return 2 * perCall
}

func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d with CHUNK_SIZE %d", c.ChunkOverlap, c.ChunkSize))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	switch c.IndexBackend {
	case IndexBackendLocal, IndexBackendQdrant:
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexBackend))
	}
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for SESSION_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}
	return errors.Join(errs...)
}

func envString(v *viper.Viper, key, fallback string) string {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return fallback
	}
	return s
}

func envInt(v *viper.Viper, key string, fallback int) int {
	n, err := strconv.Atoi(envString(v, key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(v *viper.Viper, key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(envString(v, key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(v *viper.Viper, key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(envString(v, key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(envString(v, key, ""))
	if err != nil {
		return fallback
	}
	return d
}
