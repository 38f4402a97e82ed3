package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("RAGDESK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RAGDESK_TEST_DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := store.NewWithConfig(ctx, store.StoreConfig{ConnString: dsn, TablePrefix: "test_"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestTaskStore(t *testing.T) {
	s := openStore(t)
	tasks := s.Tasks()
	ctx := context.Background()

	scope := "scope-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := models.TaskRecord{
		ID: uuid.NewString(), Scope: scope, Kind: models.TaskReindex,
		Status: models.TaskPending, Message: "queued", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, tasks.Create(ctx, rec))

	got, err := tasks.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Status)
	assert.Nil(t, got.StartedAt)

	boom := errors.New("boom")
	_, err = tasks.Update(ctx, rec.ID, func(r *models.TaskRecord) error {
		r.Progress = 50
		return boom
	})
	assert.ErrorIs(t, err, boom)

	updated, err := tasks.Update(ctx, rec.ID, func(r *models.TaskRecord) error {
		r.Status = models.TaskCompleted
		r.Progress = 100
		r.Result = map[string]any{"total_chunks": float64(4)}
		r.StartedAt = &now
		r.FinishedAt = &now
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, updated.Status)

	got, err = tasks.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, map[string]any{"total_chunks": float64(4)}, got.Result)
	require.NotNil(t, got.FinishedAt)

	list, err := tasks.List(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	_, err = tasks.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestChatStore(t *testing.T) {
	s := openStore(t)
	chats := s.Chats()
	ctx := context.Background()

	scope := "scope-" + uuid.NewString()
	msg := models.ChatMessage{
		ID: uuid.NewString(), Scope: scope, Question: "q?", Answer: "a [1]",
		Sources: []string{"a.txt"}, Chunks: []string{"chunk \x00one"},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err := chats.Save(ctx, msg)
	require.NoError(t, err)

	got, err := chats.Get(ctx, scope, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, got.Sources)
	assert.Equal(t, []string{"chunk one"}, got.Chunks)

	_, err = chats.Get(ctx, "other-scope", msg.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	fb, created, err := chats.SaveFeedback(ctx, scope, models.Feedback{ChatID: msg.ID, Rating: "up"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "up", fb.Rating)

	fb, created, err = chats.SaveFeedback(ctx, scope, models.Feedback{ChatID: msg.ID, Rating: "down", Comment: "wrong"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "down", fb.Rating)

	_, _, err = chats.SaveFeedback(ctx, "other-scope", models.Feedback{ChatID: msg.ID, Rating: "up"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	list, err := chats.List(ctx, scope, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProviderStore(t *testing.T) {
	s := openStore(t)
	providers := s.Providers()
	ctx := context.Background()

	scope := "scope-" + uuid.NewString()
	_, err := providers.Get(ctx, scope)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, providers.Set(ctx, scope, models.ProviderConfig{Provider: "openai", Model: "gpt-4.1", Credential: "sk-one"}))
	require.NoError(t, providers.Set(ctx, scope, models.ProviderConfig{Provider: "anthropic", Model: "claude-opus-4-6", Credential: "sk-two"}))

	got, err := providers.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, "claude-opus-4-6", got.Model)
	assert.Equal(t, "sk-two", got.Credential)
	assert.False(t, got.UpdatedAt.IsZero())
}
