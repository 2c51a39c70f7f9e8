// Package config loads the runtime configuration from YAML. Environment
// variables in the file are expanded before parsing so secrets stay out
// of the file itself.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Files    FilesConfig    `yaml:"files"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ProviderConfig selects and authenticates the LLM provider.
type ProviderConfig struct {
	// Name is "anthropic" or "openai".
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// StorageConfig selects the persistence adapter.
type StorageConfig struct {
	// Backend is "memory", "file", or "sql".
	Backend string `yaml:"backend"`

	// Path is the data directory for the file backend.
	Path string `yaml:"path"`

	// URL is the DSN for the sql backend.
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// FilesConfig selects the file backend for multimodal tool output.
type FilesConfig struct {
	// Backend is "noop", "local", or "s3".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures the object-store file backend.
type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	Prefix         string `yaml:"prefix"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// AgentConfig carries the per-agent defaults applied when a new agent is
// created.
type AgentConfig struct {
	Model          string  `yaml:"model"`
	SystemPrompt   string  `yaml:"system_prompt"`
	MaxSteps       int     `yaml:"max_steps"`
	MaxTokens      int     `yaml:"max_tokens"`
	ThinkingTokens int     `yaml:"thinking_tokens"`
	MaxRetries     int     `yaml:"max_retries"`
	BaseDelay      float64 `yaml:"base_delay"`
	Formatter      string  `yaml:"formatter"`
	Compactor      string  `yaml:"compactor"`
	MemoryStore    string  `yaml:"memory_store"`

	ServerTools []map[string]any `yaml:"server_tools"`
	BetaHeaders []string         `yaml:"beta_headers"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the OTLP exporter. Empty endpoint disables
// tracing.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads, expands, parses, and validates a config file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse parses config bytes with defaults applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the zero-file configuration: memory storage, noop
// files, anthropic provider with the key from the environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "anthropic"
	}
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.Provider.Name == "openai" {
			cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Files.Backend == "" {
		cfg.Files.Backend = "noop"
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "claude-sonnet-4-5"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file backend")
		}
	case "sql":
		if c.Storage.URL == "" {
			return fmt.Errorf("storage.url is required for the sql backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Files.Backend {
	case "noop", "local", "s3":
	default:
		return fmt.Errorf("unknown file backend %q", c.Files.Backend)
	}
	return nil
}
