package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
)

// MemoryStore keeps task records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.TaskRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.TaskRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec models.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("task %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return models.TaskRecord{}, types.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*models.TaskRecord) error) (models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return models.TaskRecord{}, types.ErrNotFound
	}
	work := rec.Clone()
	if err := fn(&work); err != nil {
		return rec.Clone(), err
	}
	s.records[id] = work.Clone()
	return work, nil
}

// List returns the newest records first. An empty scope lists every scope;
// limit <= 0 means no limit.
func (s *MemoryStore) List(_ context.Context, scope string, limit int) ([]models.TaskRecord, error) {
	s.mu.Lock()
	out := make([]models.TaskRecord, 0, len(s.records))
	for _, rec := range s.records {
		if scope == "" || rec.Scope == scope {
			out = append(out, rec.Clone())
		}
	}
	s.mu.Unlock()

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
