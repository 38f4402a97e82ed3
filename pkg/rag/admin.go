package rag

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/pkg/processor"
)

const (
	maxSuggestions = 10
	suggestWords   = 10
	sampleLength   = 100
)

func (s *Service) ListDocuments(_ context.Context, scope string) ([]models.DocumentInfo, error) {
	return s.docs.List(scope)
}

// DeleteDocument removes name from scope and queues a re-index.
func (s *Service) DeleteDocument(ctx context.Context, scope, name string) (models.TaskRecord, error) {
	if err := s.docs.Delete(scope, name); err != nil {
		return models.TaskRecord{}, err
	}
	s.log.Info("document deleted", "scope", scope, "file", name)
	return s.SubmitReindex(ctx, scope)
}

type VectorDatabase struct {
	Connected          bool `json:"connected"`
	TotalChunks        int  `json:"total_chunks"`
	TotalDocuments     int  `json:"total_documents"`
	EmbeddingDimension int  `json:"embedding_dimension"`
}

type Status struct {
	Status           string         `json:"status"`
	Server           string         `json:"server"`
	VectorDatabase   VectorDatabase `json:"vector_database"`
	SupportedFormats []string       `json:"supported_formats"`
}

// Status reports "ok" once the scope has a non-empty index, "degraded"
// otherwise.
func (s *Service) Status(scope string) Status {
	snap := s.scopes.Get(scope)
	stats := s.scopes.Stats(scope)
	st := Status{
		Status: "degraded",
		Server: "running",
		VectorDatabase: VectorDatabase{
			Connected:          snap != nil,
			TotalChunks:        stats.TotalChunks,
			TotalDocuments:     stats.TotalDocuments,
			EmbeddingDimension: stats.Dimension,
		},
		SupportedFormats: processor.SupportedExtensions,
	}
	if stats.TotalChunks > 0 {
		st.Status = "ok"
	}
	return st
}

type DocumentVectors struct {
	Chunks int    `json:"chunks"`
	Sample string `json:"sample"`
}

type VectorStats struct {
	TotalVectors   int                        `json:"total_vectors"`
	EmbeddingDim   int                        `json:"embedding_dim"`
	TotalDocuments int                        `json:"total_documents"`
	Documents      map[string]DocumentVectors `json:"documents"`
}

// VectorStats counts chunks per document, with the start of each document's
// first chunk as a sample.
func (s *Service) VectorStats(scope string) VectorStats {
	out := VectorStats{Documents: map[string]DocumentVectors{}}
	snap := s.scopes.Get(scope)
	if snap == nil {
		return out
	}
	for _, c := range snap.Chunks {
		d, ok := out.Documents[c.Source]
		if !ok {
			d.Sample = truncateRunes(c.Text, sampleLength)
		}
		d.Chunks++
		out.Documents[c.Source] = d
	}
	out.TotalVectors = snap.Index.Total()
	out.EmbeddingDim = snap.Index.Dim()
	out.TotalDocuments = len(out.Documents)
	return out
}

// Suggest matches q against document names and chunk openings. Results are
// sorted and capped.
func (s *Service) Suggest(scope, q string) ([]string, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, invalid("q", `please provide a query parameter "q"`)
	}
	snap := s.scopes.Get(scope)
	if snap == nil {
		return []string{}, nil
	}

	found := make(map[string]bool)
	for _, c := range snap.Chunks {
		name := strings.TrimSuffix(c.Source, filepath.Ext(c.Source))
		name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
		if strings.Contains(strings.ToLower(name), q) {
			found[name] = true
		}

		words := strings.Fields(c.Text)
		if len(words) > suggestWords {
			words = words[:suggestWords]
		}
		line := strings.Join(words, " ")
		if strings.Contains(strings.ToLower(line), q) {
			found[line] = true
		}
	}

	out := make([]string, 0, len(found))
	for v := range found {
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
