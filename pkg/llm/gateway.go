package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/pkg/logger"
)

const (
	testPrompt    = "Reply with the single word: OK"
	testMaxTokens = 16
)

// DefaultEndpoints are the base URLs used when the config names none.
var DefaultEndpoints = map[string]string{
	ProviderGemini:    "https://generativelanguage.googleapis.com/v1beta",
	ProviderOpenAI:    "https://api.openai.com/v1",
	ProviderAnthropic: "https://api.anthropic.com/v1",
	ProviderMistral:   "https://api.mistral.ai/v1",
	ProviderXAI:       "https://api.x.ai/v1",
	ProviderQwen:      "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	ProviderMiniMax:   "https://api.minimax.io/v1",
	ProviderMetaLlama: "https://api.llama.com/compat/v1",
	ProviderOther:     "http://localhost:11434",
}

// Call is one completion request as an adapter sees it.
type Call struct {
	Model      string
	Credential string
	Prompt     string
	MaxTokens  int
}

// Adapter translates a Call to one backend's wire protocol.
type Adapter interface {
	Complete(ctx context.Context, call Call) (string, error)
}

// Request is a generation request. Context chunks are numbered in order.
type Request struct {
	Query      string
	Context    []string
	Provider   string
	Model      string
	Credential string
	History    []models.ChatTurn
}

type GatewayConfig struct {
	Catalog   Catalog
	Endpoints map[string]string
	MaxTokens int
	Timeout   time.Duration
	// OtherModel is the self-hosted model served for the "other" provider.
	OtherModel string
}

// Gateway validates requests and dispatches them to the provider's adapter.
type Gateway struct {
	config   GatewayConfig
	adapters map[string]Adapter
	log      *logger.Logger
}

func NewGateway(config GatewayConfig, log *logger.Logger) *Gateway {
	if config.Catalog == nil {
		config.Catalog = DefaultCatalog
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	endpoint := func(provider string) string {
		if u := config.Endpoints[provider]; u != "" {
			return strings.TrimRight(u, "/")
		}
		return DefaultEndpoints[provider]
	}
	client := &http.Client{Timeout: config.Timeout}

	adapters := map[string]Adapter{
		ProviderGemini:    newGemini(endpoint(ProviderGemini), client),
		ProviderAnthropic: newAnthropic(endpoint(ProviderAnthropic), client),
		ProviderOther:     newOllama(endpoint(ProviderOther), config.OtherModel, client),
	}
	for _, p := range []string{ProviderOpenAI, ProviderMistral, ProviderXAI, ProviderQwen, ProviderMiniMax, ProviderMetaLlama} {
		adapters[p] = newChatCompletion(endpoint(p), client)
	}

	return &Gateway{
		config:   config,
		adapters: adapters,
		log:      log.With("component", "gateway"),
	}
}

// SetAdapter replaces the adapter serving provider.
func (g *Gateway) SetAdapter(provider string, a Adapter) {
	g.adapters[provider] = a
}

func (g *Gateway) Catalog() Catalog {
	return g.config.Catalog
}

// Validate checks provider, model and credential without any network call.
func (g *Gateway) Validate(provider, model, credential string) error {
	if _, ok := g.adapters[provider]; !ok {
		return &ConfigError{Field: "provider", Message: "unknown provider " + quote(provider)}
	}
	if _, ok := g.config.Catalog[provider]; !ok {
		return &ConfigError{Field: "provider", Message: "unknown provider " + quote(provider)}
	}
	if strings.TrimSpace(credential) == "" {
		return &ConfigError{Field: "credential", Message: "an API key is required"}
	}
	if model == "" {
		return &ConfigError{Field: "model", Message: "a model is required"}
	}
	if !g.config.Catalog.Allowed(provider, model) {
		return &ConfigError{Field: "model", Message: quote(model) + " is not available for " + provider}
	}
	return nil
}

// Generate answers req.Query from req.Context using the selected backend.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	prompt := BuildPrompt(req.Query, req.Context, req.History)
	return g.dispatch(ctx, req.Provider, Call{
		Model:      req.Model,
		Credential: req.Credential,
		Prompt:     prompt,
		MaxTokens:  g.config.MaxTokens,
	})
}

// TestConnection sends a tiny prompt to verify the credential works.
func (g *Gateway) TestConnection(ctx context.Context, provider, model, credential string) (string, error) {
	return g.dispatch(ctx, provider, Call{
		Model:      model,
		Credential: credential,
		Prompt:     testPrompt,
		MaxTokens:  testMaxTokens,
	})
}

func (g *Gateway) dispatch(ctx context.Context, provider string, call Call) (string, error) {
	if err := g.Validate(provider, call.Model, call.Credential); err != nil {
		return "", err
	}

	start := time.Now()
	out, err := g.adapters[provider].Complete(ctx, call)
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		nerr := normalize(provider, err)
		g.log.Warn("generation failed", "provider", provider, "model", call.Model, "error", nerr)
		return "", nerr
	}

	g.log.Debug("generation done", "provider", provider, "model", call.Model, "took", time.Since(start))
	return strings.TrimSpace(out), nil
}

func quote(s string) string {
	return `"` + s + `"`
}
