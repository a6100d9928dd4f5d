package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/observability"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1"
	defaultModel  = "google/gemini-2.5-flash"
)

// Client talks to an OpenAI-compatible chat completions endpoint
// (OpenRouter by default).
type Client struct {
	provider    string
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	httpClient  *http.Client
	retry       *RetryConfig
	logger      *observability.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
	Retry       *RetryConfig
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ResponseFormat asks the endpoint for a JSON object reply
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Error   *APIFault `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents the assistant message in a choice
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// APIFault is the error body some gateways return with a 200 status
type APIFault struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

// NewClient creates a new chat completions client
func NewClient(cfg ClientConfig, logger *observability.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterURL
	}
	if cfg.Provider == "" {
		cfg.Provider = "openrouter"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Client{
		provider:    cfg.Provider,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		retry:       cfg.Retry,
		logger:      logger.WithOperation("llm"),
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.provider }

// Model returns the model identifier sent with each request.
func (c *Client) Model() string { return c.model }

// Complete sends the instruction and document text and returns the reply
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(c.buildRequest(system, user))
	if err != nil {
		return "", domain.APIError("Failed to marshal request", err)
	}

	start := time.Now()
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("HTTP-Referer", "https://github.com/spherical/account-planner")
		req.Header.Set("X-Title", "Account Plan Generator")

		return c.httpClient.Do(req)
	})
	if err != nil {
		return "", domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.APIError("Failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, truncate(string(data), 512)), nil)
	}

	var parsed Response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", domain.APIError("Failed to decode response", err)
	}
	if parsed.Error != nil {
		return "", domain.APIError("API error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.APIError("API returned no choices", nil)
	}

	content := parsed.Choices[0].Message.Content
	c.logger.Debug().
		Str("model", c.model).
		Int("chars", len(content)).
		Str("finish_reason", parsed.Choices[0].FinishReason).
		Dur("latency", time.Since(start)).
		Msg("completion received")
	return content, nil
}

func (c *Client) buildRequest(system, user string) *Request {
	return &Request{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: []ContentPart{{Type: "text", Text: system}}},
			{Role: "user", Content: []ContentPart{{Type: "text", Text: user}}},
		},
		Temperature:    c.temperature,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
