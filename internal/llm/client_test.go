package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/account-planner/internal/config"
	"github.com/spherical/account-planner/internal/domain"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		APIKey:  "sk-test",
		BaseURL: url,
		Retry:   fastRetry(),
	}, nil)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{
		ID:      "gen-1",
		Choices: []Choice{{Message: Delta{Role: "assistant", Content: content}, FinishReason: "stop"}},
	})
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		wantModel string
	}{
		{name: "default model", model: "", wantModel: defaultModel},
		{name: "custom model", model: "google/gemini-2.5-pro", wantModel: "google/gemini-2.5-pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(ClientConfig{APIKey: "sk-or-test-key", Model: tt.model}, nil)
			if client.Model() != tt.wantModel {
				t.Errorf("Expected model %s, got %s", tt.wantModel, client.Model())
			}
			if client.Name() != "openrouter" {
				t.Errorf("Expected provider openrouter, got %s", client.Name())
			}
			if client.baseURL != openRouterURL {
				t.Errorf("Expected base URL %s, got %s", openRouterURL, client.baseURL)
			}
		})
	}
}

func TestBuildRequest(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "test-key", Temperature: 0.2}, nil)
	req := client.buildRequest("system text", "user text")

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "system text", req.Messages[0].Content[0].Text)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "user text", req.Messages[1].Content[0].Text)
	assert.False(t, req.Stream)
	assert.Equal(t, 0.2, req.Temperature)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
}

func TestComplete_Success(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "Account Plan Generator", r.Header.Get("X-Title"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		writeCompletion(w, `{"Account Overview": {}}`)
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), "sys", "doc")
	require.NoError(t, err)
	assert.Equal(t, `{"Account Overview": {}}`, out)
	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, "doc", got.Messages[1].Content[0].Text)
}

func TestComplete_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeCompletion(w, "{}")
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), "sys", "doc")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "sys", "doc")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeAPI, domain.TypeOf(err))
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{
			name: "non-retryable status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"bad model"}`))
			},
			wantMsg: "status 400",
		},
		{
			name: "fault in 200 body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","code":402}}`))
			},
			wantMsg: "quota exceeded",
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
			},
			wantMsg: "no choices",
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>gateway</html>`))
			},
			wantMsg: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), "sys", "doc")
			require.Error(t, err)
			assert.Equal(t, domain.ErrorTypeAPI, domain.TypeOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestComplete_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "{}")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL).Complete(ctx, "sys", "doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, shouldRetry(code), code)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short kept", "abc", 5, "abc"},
		{"ascii cut", "abcdef", 3, "abc..."},
		{"cut backs off to rune start", "Zürich", 2, "Z..."},
		{"multibyte boundary kept", "Zürich", 3, "Zü..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":1}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	g, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "g-key",
		Model:   "google/gemini-2.5-flash",
		BaseURL: srv.URL,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", g.Name())
	assert.Equal(t, "gemini-2.5-flash", g.Model())

	out, err := g.Complete(context.Background(), "sys", "doc")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	assert.True(t, strings.HasSuffix(path, "gemini-2.5-flash:generateContent"), path)
}

func TestNew(t *testing.T) {
	base := config.DefaultConfig().LLM

	t.Run("missing key", func(t *testing.T) {
		_, err := New(context.Background(), base, nil)
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeConfig, domain.TypeOf(err))
		assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
	})

	t.Run("openrouter", func(t *testing.T) {
		cfg := base
		cfg.APIKey = "k"
		p, err := New(context.Background(), cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "openrouter", p.Name())
		assert.Equal(t, base.Model, p.Model())
	})

	t.Run("gemini", func(t *testing.T) {
		cfg := base
		cfg.Provider = "gemini"
		cfg.APIKey = "k"
		p, err := New(context.Background(), cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, "gemini", p.Name())
		assert.Empty(t, geminiBaseURL(cfg))
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := base
		cfg.Provider = "bard"
		cfg.APIKey = "k"
		_, err := New(context.Background(), cfg, nil)
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeConfig, domain.TypeOf(err))
	})
}
