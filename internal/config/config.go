// Package config provides configuration loading for the account planner.
// Supports YAML files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/sanitize"
)

// Config holds all configuration for the planner binaries.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Cache         CacheConfig         `yaml:"cache"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Schema        SchemaConfig        `yaml:"schema"`
	Sanitize      sanitize.Config     `yaml:"sanitize"`
	Render        RenderConfig        `yaml:"render"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// LLMConfig selects and tunes the structured extraction provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openrouter or gemini
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	PromptPath  string        `yaml:"prompt_path"`

	// APIKey is resolved from APIKeyEnv and never read from the file.
	APIKey string `yaml:"-"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, redis or none
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ExtractionConfig holds input document settings.
type ExtractionConfig struct {
	MinInputLength int    `yaml:"min_input_length"`
	MaxFileSize    int64  `yaml:"max_file_size"`
	PDFBackend     string `yaml:"pdf_backend"` // fitz or pdfcpu
}

// SchemaConfig points at an alternative schema file. Empty uses the
// embedded canonical schema.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// RenderConfig holds document output settings.
type RenderConfig struct {
	TemplatePath string `yaml:"template_path"`
	OutputDir    string `yaml:"output_dir"`
	Enrich       bool   `yaml:"enrich"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   5 * time.Minute,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   32 << 20,
			AllowedOrigins:   []string{"*"},
		},
		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "google/gemini-2.5-flash",
			BaseURL:     "https://openrouter.ai/api/v1",
			APIKeyEnv:   "OPENROUTER_API_KEY",
			Temperature: 0.2,
			Timeout:     3 * time.Minute,
			MaxRetries:  3,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 500,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Extraction: ExtractionConfig{
			MinInputLength: domain.MinInputLength,
			MaxFileSize:    50 << 20,
			PDFBackend:     "fitz",
		},
		Sanitize: sanitize.Config{
			Placeholder: domain.Placeholder,
		},
		Render: RenderConfig{
			TemplatePath: "templates/account_plan.docx",
			OutputDir:    "output",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "account-planner",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	switch c.LLM.Provider {
	case "openrouter", "openai", "gemini":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid llm provider: %s", c.LLM.Provider), nil)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return domain.ConfigError(fmt.Sprintf("llm temperature must be between 0 and 2, got %g", c.LLM.Temperature), nil)
	}

	if c.LLM.MaxRetries < 0 {
		return domain.ConfigError("llm max_retries cannot be negative", nil)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid cache driver: %s", c.Cache.Driver), nil)
	}

	switch c.Extraction.PDFBackend {
	case "fitz", "pdfcpu":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid pdf backend: %s", c.Extraction.PDFBackend), nil)
	}

	if c.Extraction.MinInputLength < 0 {
		return domain.ConfigError("min_input_length cannot be negative", nil)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// applyRedisURL copies address, credentials and database from a
// redis:// or rediss:// URL. A bare host:port is used as the address.
func applyRedisURL(rc *RedisConfig, raw string) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		rc.Addr = strings.TrimPrefix(raw, "redis://")
		return
	}
	rc.Addr = opts.Addr
	rc.DB = opts.DB
	if opts.Password != "" {
		rc.Password = opts.Password
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
		// Follow the provider's conventional key variable unless one was set.
		if os.Getenv("LLM_API_KEY_ENV") == "" {
			switch v {
			case "openai":
				cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
				cfg.LLM.BaseURL = "https://api.openai.com/v1"
			case "gemini":
				cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
			}
		}
	}

	if v := os.Getenv("LLM_API_KEY_ENV"); v != "" {
		cfg.LLM.APIKeyEnv = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		applyRedisURL(&cfg.Cache.Redis, v)
	}

	if v := os.Getenv("SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}

	if v := os.Getenv("TEMPLATE_PATH"); v != "" {
		cfg.Render.TemplatePath = v
	}

	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Render.OutputDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
