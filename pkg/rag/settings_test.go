package rag_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/llm"
	"github.com/xhad/ragdesk/pkg/rag"
)

func TestProviderSettings_Defaults(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.ProviderSettings(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, rag.ProviderSettings{
		Provider: llm.ProviderOpenAI,
		Model:    "gpt-4.1",
		APIKey:   "****",
		Source:   "default",
	}, got)
}

func TestSetProviderConfig(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.reindex(t)
	ctx := context.Background()

	saved, err := f.svc.SetProviderConfig(ctx, scope, models.ProviderConfig{
		Provider:   " openai ",
		Model:      "gpt-5-mini",
		Credential: "sk-scope-key-1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "scope", saved.Source)
	assert.Equal(t, "gpt-5-mini", saved.Model)
	assert.Equal(t, "sk-...1234", saved.APIKey)
	require.NotNil(t, saved.UpdatedAt)

	_, err = f.svc.Answer(ctx, scope, rag.AskRequest{Question: "capital of France"})
	require.NoError(t, err)
	calls := f.adapter.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-5-mini", calls[0].Model)
	assert.Equal(t, "sk-scope-key-1234", calls[0].Credential)

	// request fields still win over the saved ones
	_, err = f.svc.Answer(ctx, scope, rag.AskRequest{Question: "capital of France", Model: "gpt-4.1", Credential: "sk-request"})
	require.NoError(t, err)
	calls = f.adapter.Calls()
	assert.Equal(t, "gpt-4.1", calls[1].Model)
	assert.Equal(t, "sk-request", calls[1].Credential)

	// other scopes keep the server defaults
	other, err := f.svc.ProviderSettings(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "default", other.Source)
	assert.Equal(t, "gpt-4.1", other.Model)
}

func TestSetProviderConfig_KeepsCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetProviderConfig(ctx, scope, models.ProviderConfig{
		Provider: llm.ProviderOpenAI, Model: "gpt-5-mini", Credential: "sk-scope-key-1234",
	})
	require.NoError(t, err)

	got, err := f.svc.SetProviderConfig(ctx, scope, models.ProviderConfig{
		Provider: llm.ProviderOpenAI, Model: "gpt-4.1",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", got.Model)
	assert.Equal(t, "sk-...1234", got.APIKey)

	// a different provider needs its own key
	_, err = f.svc.SetProviderConfig(ctx, scope, models.ProviderConfig{
		Provider: llm.ProviderAnthropic, Model: "claude-opus-4-6",
	})
	var cerr *llm.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "credential", cerr.Field)
}

func TestSetProviderConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		cfg   models.ProviderConfig
		field string
	}{
		{"unknown provider", models.ProviderConfig{Provider: "word2vec", Model: "x", Credential: "k"}, "provider"},
		{"model outside catalog", models.ProviderConfig{Provider: llm.ProviderOpenAI, Model: "grok-4", Credential: "k"}, "model"},
		{"missing model", models.ProviderConfig{Provider: llm.ProviderOpenAI, Credential: "k"}, "model"},
		{"missing credential", models.ProviderConfig{Provider: llm.ProviderOpenAI, Model: "gpt-4.1"}, "credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.SetProviderConfig(context.Background(), scope, tt.cfg)
			var cerr *llm.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)

			got, err := f.svc.ProviderSettings(context.Background(), scope)
			require.NoError(t, err)
			assert.Equal(t, "default", got.Source, "rejected settings are not saved")
		})
	}
}

func TestTestProviderConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.adapter.out = "OK"

	_, err := f.svc.SetProviderConfig(ctx, scope, models.ProviderConfig{
		Provider: llm.ProviderOpenAI, Model: "gpt-5-mini", Credential: "sk-scope-key-1234",
	})
	require.NoError(t, err)

	reply, err := f.svc.TestProviderConfig(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
	calls := f.adapter.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-5-mini", calls[0].Model)
}

func TestExportChat(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.reindex(t)
	ctx := context.Background()

	msg, err := f.svc.Chat(ctx, scope, rag.AskRequest{Question: "capital of France"})
	require.NoError(t, err)

	out, err := f.svc.ExportChat(ctx, scope, msg.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "# capital of France\n")
	assert.Contains(t, out, "Paris [1]\n")
	assert.Contains(t, out, "## Sources\n\n- france.txt\n- germany.md\n")
	assert.Contains(t, out, "[1] (france.txt)\nParis is the capital of France.\n")

	_, err = f.svc.ExportChat(ctx, "bob", msg.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
