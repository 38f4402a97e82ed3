package index

import (
	"sync"

	"github.com/xhad/ragdesk/internal/models"
)

// Snapshot is the searchable state of one scope. Chunks[i] is the chunk
// behind index entry i. Snapshots are never mutated once published.
type Snapshot struct {
	Chunks []models.Chunk
	Index  *Index
}

// Stats summarises a scope's current snapshot.
type Stats struct {
	TotalChunks    int      `json:"total_chunks"`
	TotalDocuments int      `json:"total_documents"`
	Dimension      int      `json:"dimension"`
	Documents      []string `json:"documents"`
}

// Scopes maps a scope identifier to its current snapshot. Rebuilds publish a
// whole new snapshot so readers always see chunks and index from the same
// build.
type Scopes struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

func NewScopes() *Scopes {
	return &Scopes{snaps: make(map[string]*Snapshot)}
}

// Get returns the scope's snapshot, or nil if it was never built.
func (s *Scopes) Get(scope string) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snaps[scope]
}

// Swap publishes snap for scope.
func (s *Scopes) Swap(scope string, snap *Snapshot) {
	s.mu.Lock()
	s.snaps[scope] = snap
	s.mu.Unlock()
}

func (s *Scopes) Drop(scope string) {
	s.mu.Lock()
	delete(s.snaps, scope)
	s.mu.Unlock()
}

func (s *Scopes) Stats(scope string) Stats {
	snap := s.Get(scope)
	if snap == nil {
		return Stats{Documents: []string{}}
	}
	return snap.Stats()
}

func (snap *Snapshot) Stats() Stats {
	docs := []string{}
	seen := make(map[string]bool)
	for _, c := range snap.Chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			docs = append(docs, c.Source)
		}
	}
	return Stats{
		TotalChunks:    len(snap.Chunks),
		TotalDocuments: len(docs),
		Dimension:      snap.Index.Dim(),
		Documents:      docs,
	}
}
