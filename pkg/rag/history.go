package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
)

// MemoryHistory is the in-process chat history used when no database is
// configured.
type MemoryHistory struct {
	mu       sync.Mutex
	messages map[string]models.ChatMessage
	feedback map[string]models.Feedback
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		messages: make(map[string]models.ChatMessage),
		feedback: make(map[string]models.Feedback),
	}
}

func (h *MemoryHistory) Save(_ context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[msg.ID] = msg
	return msg, nil
}

func (h *MemoryHistory) List(_ context.Context, scope string, limit int) ([]models.ChatMessage, error) {
	h.mu.Lock()
	out := []models.ChatMessage{}
	for _, m := range h.messages {
		if m.Scope == scope {
			out = append(out, m)
		}
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *MemoryHistory) Get(_ context.Context, scope, id string) (models.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.messages[id]
	if !ok || m.Scope != scope {
		return models.ChatMessage{}, types.ErrNotFound
	}
	return m, nil
}

func (h *MemoryHistory) SaveFeedback(_ context.Context, scope string, fb models.Feedback) (models.Feedback, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.messages[fb.ChatID]
	if !ok || m.Scope != scope {
		return fb, false, types.ErrNotFound
	}
	prev, exists := h.feedback[fb.ChatID]
	if exists {
		fb.CreatedAt = prev.CreatedAt
	} else if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	h.feedback[fb.ChatID] = fb
	return fb, !exists, nil
}
