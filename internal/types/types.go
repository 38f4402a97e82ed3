package types

import (
	"context"
	"errors"

	"github.com/xhad/ragdesk/internal/models"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Embedder matches langchaingo's embeddings.Embedder so its implementations
// plug in directly.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores (query, candidate) pairs. The returned slice is parallel to
// candidates; higher means more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// Extractor turns a stored file into plain text.
type Extractor interface {
	Extract(ctx context.Context, path, format string) (string, error)
}

// TaskStore persists task records. Update runs fn against the current record
// atomically; if fn returns an error nothing is written and the error is
// returned together with the unmodified record.
type TaskStore interface {
	Create(ctx context.Context, rec models.TaskRecord) error
	Get(ctx context.Context, id string) (models.TaskRecord, error)
	Update(ctx context.Context, id string, fn func(*models.TaskRecord) error) (models.TaskRecord, error)
	List(ctx context.Context, scope string, limit int) ([]models.TaskRecord, error)
}

// ChatHistory persists answered questions and the feedback left on them.
type ChatHistory interface {
	Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	List(ctx context.Context, scope string, limit int) ([]models.ChatMessage, error)
	Get(ctx context.Context, scope, id string) (models.ChatMessage, error)
	SaveFeedback(ctx context.Context, scope string, fb models.Feedback) (models.Feedback, bool, error)
}

// ProviderConfigs stores one ProviderConfig per scope. Get returns
// ErrNotFound for a scope that never saved one.
type ProviderConfigs interface {
	Get(ctx context.Context, scope string) (models.ProviderConfig, error)
	Set(ctx context.Context, scope string, cfg models.ProviderConfig) error
}
