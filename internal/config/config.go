package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the errorwatch server.
// It is resolved once at startup and passed down; nothing re-reads the environment later.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Notify   NotifyConfig
	Analysis AnalysisConfig
	Snapshot SnapshotConfig
	AI       AIConfig
}

type ServerConfig struct {
	Port            int    `env:"ERRORWATCH_PORT" envDefault:"8080"`
	Env             string `env:"ERRORWATCH_ENV" envDefault:"development"`
	RequestsPerMin  int    `env:"ERRORWATCH_REQUESTS_PER_MIN" envDefault:"60"`
	MaxEnvelopeSize int64  `env:"ERRORWATCH_MAX_ENVELOPE_BYTES" envDefault:"10485760"`
}

// DatabaseConfig selects the storage backend. Backend "memory" keeps records in-process.
type DatabaseConfig struct {
	Backend         string        `env:"STORAGE_BACKEND" envDefault:"postgres"`
	URL             string        `env:"DATABASE_URL"`
	MigrationsDir   string        `env:"DATABASE_MIGRATIONS_DIR" envDefault:"migrations"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// RedisConfig is optional; without a URL an in-process cache is used.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// CacheConfig turns read-through caching on per record type. Anything written
// outside this process (operator edits, CLI, client re-subscriptions) must stay uncached.
type CacheConfig struct {
	ErrorRecords  bool          `env:"CACHE_ERROR_RECORDS" envDefault:"false"`
	Subscriptions bool          `env:"CACHE_SUBSCRIPTIONS" envDefault:"false"`
	Admins        bool          `env:"CACHE_ADMINS" envDefault:"false"`
	Features      bool          `env:"CACHE_FEATURES" envDefault:"false"`
	TTL           time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	MemorySize    int           `env:"CACHE_MEMORY_SIZE" envDefault:"4096"`
}

type NotifyConfig struct {
	ClientBaseURL string        `env:"CLIENT_BASE_URL" envDefault:"http://localhost:3000"`
	Icon          string        `env:"NOTIFY_ICON" envDefault:"/logo.png"`
	Concurrency   int           `env:"NOTIFY_CONCURRENCY" envDefault:"4"`
	Timeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

// Endpoint is the client-side callback that renders and forwards a push message.
func (c NotifyConfig) Endpoint() string {
	return strings.TrimRight(c.ClientBaseURL, "/") + "/api/send-notification"
}

type AnalysisConfig struct {
	Mode            string `env:"ANALYSIS_MODE" envDefault:"async"`
	Workers         int    `env:"ANALYSIS_WORKERS" envDefault:"2"`
	QueueSize       int    `env:"ANALYSIS_QUEUE_SIZE" envDefault:"100"`
	FetchContext    bool   `env:"ANALYSIS_FETCH_CONTEXT" envDefault:"true"`
	WebSearch       bool   `env:"ANALYSIS_WEB_SEARCH" envDefault:"false"`
	SkipAnalyzed    bool   `env:"ANALYSIS_SKIP_ANALYZED" envDefault:"false"`
	MaxContextBytes int    `env:"ANALYSIS_MAX_CONTEXT_BYTES" envDefault:"400000"`
}

// SnapshotConfig selects how a feature's source tree is flattened into prompt text.
type SnapshotConfig struct {
	Strategy string        `env:"SNAPSHOT_STRATEGY" envDefault:"getter"`
	TempDir  string        `env:"SNAPSHOT_TEMP_DIR"`
	Command  string        `env:"SNAPSHOT_COMMAND" envDefault:"repomix"`
	Timeout  time.Duration `env:"SNAPSHOT_TIMEOUT" envDefault:"2m"`
}

type AIConfig struct {
	Provider         string        `env:"AI_PROVIDER"`
	InferenceTimeout time.Duration `env:"AI_INFERENCE_TIMEOUT" envDefault:"120s"`
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	Model   string `env:"OLLAMA_MODEL" envDefault:"llama3"`
}

type VLLMConfig struct {
	BaseURL string `env:"VLLM_BASE_URL" envDefault:"http://localhost:8000"`
	Model   string `env:"VLLM_MODEL"`
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-5"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
}

type AnthropicConfig struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	Model   string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com/v1"`
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("ERRORWATCH_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	if !isHTTPURL(c.Notify.ClientBaseURL) {
		return fmt.Errorf("CLIENT_BASE_URL must start with http:// or https://, got %q", c.Notify.ClientBaseURL)
	}
	if c.Notify.Concurrency <= 0 {
		return fmt.Errorf("NOTIFY_CONCURRENCY must be positive, got %d", c.Notify.Concurrency)
	}

	if c.Analysis.Mode != "sync" && c.Analysis.Mode != "async" {
		return fmt.Errorf("ANALYSIS_MODE must be one of sync, async; got %q", c.Analysis.Mode)
	}
	if c.Analysis.Mode == "async" && (c.Analysis.Workers <= 0 || c.Analysis.QueueSize <= 0) {
		return fmt.Errorf("ANALYSIS_WORKERS and ANALYSIS_QUEUE_SIZE must be positive in async mode")
	}

	if c.Snapshot.Strategy != "getter" && c.Snapshot.Strategy != "command" {
		return fmt.Errorf("SNAPSHOT_STRATEGY must be one of getter, command; got %q", c.Snapshot.Strategy)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT must be positive")
	}

	return nil
}

// LoadDatabase reads only the storage settings, for tools that never serve traffic
// or call a model.
func LoadDatabase() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c DatabaseConfig) validate() error {
	switch c.Backend {
	case "postgres":
		if c.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of postgres, memory; got %q", c.Backend)
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
