package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/pkg/llm"
)

type fakeAdapter struct {
	calls []llm.Call
	out   string
	err   error
}

func (f *fakeAdapter) Complete(_ context.Context, call llm.Call) (string, error) {
	f.calls = append(f.calls, call)
	return f.out, f.err
}

func TestCatalog(t *testing.T) {
	c := llm.DefaultCatalog

	assert.Equal(t, []string{
		"google-gemini", "openai", "anthropic", "mistral", "xai",
		"qwen", "minimax", "meta-llama", "other",
	}, c.Providers())
	assert.True(t, c.Allowed("openai", "gpt-4.1"))
	assert.True(t, c.Allowed("minimax", "MiniMax-M2"))
	assert.False(t, c.Allowed("openai", "claude-opus-4-6"))
	assert.False(t, c.Allowed("nope", "gpt-4.1"))
	assert.Equal(t, []string{"custom-model"}, c.Models("other"))
}

func TestBuildPrompt(t *testing.T) {
	prompt := llm.BuildPrompt("What is the capital?", []string{"Paris is the capital.", "Lyon is a city."}, []models.ChatTurn{
		{Question: "Hi", Answer: "Hello"},
	})

	assert.Contains(t, prompt, "Cite sources as [1], [2]")
	assert.Contains(t, prompt, "[1] Paris is the capital.\n\n[2] Lyon is a city.")
	assert.Contains(t, prompt, "Previous conversation:\nQ: Hi\nA: Hello")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is the capital?\n\nAnswer:"))

	assert.NotContains(t, llm.BuildPrompt("q", nil, nil), "Previous conversation")
}

func TestGateway_ValidatesBeforeDispatch(t *testing.T) {
	fake := &fakeAdapter{out: "answer"}
	g := llm.NewGateway(llm.GatewayConfig{}, nil)
	g.SetAdapter("openai", fake)

	tests := []struct {
		name     string
		provider string
		model    string
		cred     string
		field    string
	}{
		{"unknown provider", "acme", "gpt-4.1", "key", "provider"},
		{"model not in catalog", "openai", "gpt-2", "key", "model"},
		{"model from other provider", "openai", "grok-4", "key", "model"},
		{"empty model", "openai", "", "key", "model"},
		{"empty credential", "openai", "gpt-4.1", "  ", "credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), llm.Request{
				Query: "q", Provider: tt.provider, Model: tt.model, Credential: tt.cred,
			})
			var cerr *llm.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
	assert.Empty(t, fake.calls)
}

func TestGateway_EmptyCompletionIs502(t *testing.T) {
	g := llm.NewGateway(llm.GatewayConfig{}, nil)
	g.SetAdapter("anthropic", &fakeAdapter{out: "   "})

	_, err := g.Generate(context.Background(), llm.Request{
		Query: "q", Provider: "anthropic", Model: "claude-opus-4-6", Credential: "key",
	})

	var gerr *llm.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadGateway, gerr.Status)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestGateway_BackendFailureIs400(t *testing.T) {
	g := llm.NewGateway(llm.GatewayConfig{}, nil)
	g.SetAdapter("xai", &fakeAdapter{err: errors.New("connection refused")})

	_, err := g.Generate(context.Background(), llm.Request{
		Query: "q", Provider: "xai", Model: "grok-4", Credential: "key",
	})

	var gerr *llm.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
	assert.Contains(t, gerr.Message, "connection refused")
}

func TestGateway_TestConnectionUsesSmallCap(t *testing.T) {
	fake := &fakeAdapter{out: "OK"}
	g := llm.NewGateway(llm.GatewayConfig{MaxTokens: 2048}, nil)
	g.SetAdapter("mistral", fake)

	out, err := g.TestConnection(context.Background(), "mistral", "codestral", "key")
	require.NoError(t, err)
	assert.Equal(t, "OK", out)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, 16, fake.calls[0].MaxTokens)
	assert.Equal(t, "codestral", fake.calls[0].Model)
}

func TestGateway_GeneratePassesPrompt(t *testing.T) {
	fake := &fakeAdapter{out: " Paris [1] "}
	g := llm.NewGateway(llm.GatewayConfig{MaxTokens: 512}, nil)
	g.SetAdapter("qwen", fake)

	out, err := g.Generate(context.Background(), llm.Request{
		Query: "capital?", Context: []string{"Paris is the capital."},
		Provider: "qwen", Model: "qwen-plus", Credential: "key",
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris [1]", out)
	assert.Contains(t, fake.calls[0].Prompt, "[1] Paris is the capital.")
	assert.Equal(t, 512, fake.calls[0].MaxTokens)
}

func TestChatCompletionAdapter(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"gpt-4.1","choices":[{"index":0,"message":{"role":"assistant","content":"Paris [1]"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"openai": srv.URL}}, nil)
	out, err := g.Generate(context.Background(), llm.Request{
		Query: "capital?", Context: []string{"Paris is the capital."},
		Provider: "openai", Model: "gpt-4.1", Credential: "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris [1]", out)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4.1", got["model"])
}

func TestChatCompletionAdapter_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"mistral": srv.URL}}, nil)
	_, err := g.Generate(context.Background(), llm.Request{
		Query: "q", Provider: "mistral", Model: "codestral", Credential: "key",
	})

	var gerr *llm.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadGateway, gerr.Status)
}

func TestGeminiAdapter(t *testing.T) {
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Paris "},{"text":"[1]"}]}}]}`))
	}))
	defer srv.Close()

	g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"google-gemini": srv.URL}}, nil)
	out, err := g.Generate(context.Background(), llm.Request{
		Query: "q", Provider: "google-gemini", Model: "gemini-2.5-flash", Credential: "g-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris [1]", out)
	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", path)
	assert.Equal(t, "g-key", key)
}

func TestGeminiAdapter_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"google-gemini": srv.URL}}, nil)
	_, err := g.TestConnection(context.Background(), "google-gemini", "gemini-2.5-pro", "bad")

	var gerr *llm.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.Status)
	assert.Contains(t, gerr.Message, "API key not valid")
}

func TestGeminiAdapter_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"google-gemini": srv.URL}}, nil)
	_, err := g.Generate(context.Background(), llm.Request{
		Query: "q", Provider: "google-gemini", Model: "gemini-2.5-pro", Credential: "k",
	})

	var gerr *llm.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadGateway, gerr.Status)
}

func TestAnthropicAdapter(t *testing.T) {
	var headers http.Header
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Write([]byte(`{"content":[{"type":"text","text":"Paris [1]"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"anthropic": srv.URL + "/v1"}}, nil)
	out, err := g.TestConnection(context.Background(), "anthropic", "claude-haiku-4-5-20251001", "a-key")
	require.NoError(t, err)
	assert.Equal(t, "Paris [1]", out)
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
	assert.Equal(t, "a-key", headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", headers.Get("anthropic-version"))
	assert.Equal(t, float64(16), body["max_tokens"])
}

func TestAnthropicAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{"rejected key", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, http.StatusBadRequest},
		{"no text", http.StatusOK, `{"content":[],"stop_reason":"end_turn"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := llm.NewGateway(llm.GatewayConfig{Endpoints: map[string]string{"anthropic": srv.URL + "/v1"}}, nil)
			_, err := g.TestConnection(context.Background(), "anthropic", "claude-haiku-4-5-20251001", "a-key")
			var gerr *llm.Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.want, gerr.Status)
		})
	}
}
