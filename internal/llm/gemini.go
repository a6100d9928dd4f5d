package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/observability"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // empty uses the SDK default
	Temperature float64
}

// GeminiClient calls Google's Gemini API through the GenAI SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *observability.Logger
}

// NewGeminiClient creates a Gemini-backed Provider.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *observability.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("Gemini API key is required", nil)
	}
	model := cfg.Model
	// OpenRouter style ids ("google/gemini-...") name the same models.
	model = strings.TrimPrefix(model, "google/")
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = observability.Nop()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, domain.APIError("failed to create GenAI client", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		logger:      logger.WithOperation("llm"),
	}, nil
}

// Name returns "gemini".
func (g *GeminiClient) Name() string { return "gemini" }

// Model returns the Gemini model id.
func (g *GeminiClient) Model() string { return g.model }

// Complete runs one GenerateContent call with system as the system instruction.
func (g *GeminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", domain.APIError("gemini generate content", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := "no candidates"
		if len(resp.Candidates) > 0 {
			reason = fmt.Sprintf("finish reason %s", resp.Candidates[0].FinishReason)
		}
		return "", domain.APIError("gemini returned an empty response: "+reason, nil)
	}

	g.logger.Debug().Str("model", g.model).Int("chars", len(text)).Msg("completion received")
	return text, nil
}
