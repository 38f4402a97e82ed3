package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// chatCompletion serves every backend that speaks the OpenAI chat-completions
// protocol; only the base URL and model differ between them.
type chatCompletion struct {
	baseURL string
	client  *http.Client
}

func newChatCompletion(baseURL string, client *http.Client) *chatCompletion {
	return &chatCompletion{baseURL: baseURL, client: client}
}

func (a *chatCompletion) Complete(ctx context.Context, call Call) (string, error) {
	model, err := openai.New(
		openai.WithToken(call.Credential),
		openai.WithBaseURL(a.baseURL),
		openai.WithModel(call.Model),
		openai.WithHTTPClient(a.client),
	)
	if err != nil {
		return "", fmt.Errorf("init client: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, model, call.Prompt, llms.WithMaxTokens(call.MaxTokens))
	if errors.Is(err, openai.ErrEmptyResponse) {
		return "", ErrEmptyResponse
	}
	return out, err
}

// ollamaChat runs a self-hosted model through an Ollama server.
type ollamaChat struct {
	serverURL string
	model     string
	client    *http.Client
}

func newOllama(serverURL, model string, client *http.Client) *ollamaChat {
	return &ollamaChat{serverURL: serverURL, model: model, client: client}
}

func (a *ollamaChat) Complete(ctx context.Context, call Call) (string, error) {
	name := a.model
	if name == "" {
		name = call.Model
	}
	model, err := ollama.New(
		ollama.WithModel(name),
		ollama.WithServerURL(a.serverURL),
		ollama.WithHTTPClient(a.client),
	)
	if err != nil {
		return "", fmt.Errorf("init client: %w", err)
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, model, call.Prompt, llms.WithMaxTokens(call.MaxTokens))
	if errors.Is(err, ollama.ErrEmptyResponse) {
		return "", ErrEmptyResponse
	}
	return out, err
}
