// Package llm maps raw document text onto the account plan schema with a
// hosted language model.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/account-planner/internal/config"
	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/observability"
)

// Provider is a chat model that answers one system + user exchange.
type Provider interface {
	domain.StructuredExtractor
	// Name identifies the provider in cache keys and logs.
	Name() string
	Model() string
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg config.LLMConfig, logger *observability.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError(fmt.Sprintf("no API key: set %s", cfg.APIKeyEnv), nil)
	}

	switch cfg.Provider {
	case "openrouter", "openai":
		return NewClient(ClientConfig{
			Provider:    cfg.Provider,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			Retry: &RetryConfig{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: initialBackoff,
				MaxBackoff:     maxBackoff,
			},
		}, logger), nil
	case "gemini":
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     geminiBaseURL(cfg),
			Temperature: cfg.Temperature,
		}, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown llm provider %q", cfg.Provider), nil)
	}
}

// geminiBaseURL ignores the OpenRouter default so the SDK uses its own.
func geminiBaseURL(cfg config.LLMConfig) string {
	if cfg.BaseURL == config.DefaultConfig().LLM.BaseURL {
		return ""
	}
	return cfg.BaseURL
}

const defaultTimeout = 3 * time.Minute
