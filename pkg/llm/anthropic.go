package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcanthropic "github.com/tmc/langchaingo/llms/anthropic"
)

// anthropic talks to the Messages API. baseURL includes the version
// segment, e.g. https://api.anthropic.com/v1.
type anthropic struct {
	baseURL string
	client  *http.Client
}

func newAnthropic(baseURL string, client *http.Client) *anthropic {
	return &anthropic{baseURL: baseURL, client: client}
}

func (a *anthropic) Complete(ctx context.Context, call Call) (string, error) {
	model, err := lcanthropic.New(
		lcanthropic.WithToken(call.Credential),
		lcanthropic.WithBaseURL(a.baseURL),
		lcanthropic.WithModel(call.Model),
		lcanthropic.WithHTTPClient(a.client),
	)
	if err != nil {
		return "", fmt.Errorf("init client: %w", err)
	}

	// max_tokens is mandatory for this API
	maxTokens := call.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, call.Prompt),
	}, llms.WithMaxTokens(maxTokens))
	if errors.Is(err, lcanthropic.ErrEmptyResponse) {
		return "", ErrEmptyResponse
	}
	if err != nil {
		return "", err
	}

	// One choice per content block; only text blocks carry answer text.
	var sb strings.Builder
	for _, choice := range resp.Choices {
		if choice != nil {
			sb.WriteString(choice.Content)
		}
	}
	return sb.String(), nil
}
