package rag

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/pkg/index"
	"github.com/xhad/ragdesk/pkg/llm"
)

const maxTopK = 100

type SearchResult struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []models.SearchHit `json:"results"`
}

type RerankResult struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []models.RerankHit `json:"results"`
}

// AskRequest is one question. Empty provider fields fall back to the
// configured defaults; nil History means no transcript.
type AskRequest struct {
	Question   string
	Provider   string
	Model      string
	Credential string
	History    []models.ChatTurn
	TopK       int
}

func checkTopK(field string, k int) error {
	if k < 1 || k > maxTopK {
		return invalid(field, "must be between 1 and %d", maxTopK)
	}
	return nil
}

func (s *Service) hits(ctx context.Context, scope, query string, topK int) ([]models.SearchHit, error) {
	snap := s.scopes.Get(scope)
	if snap == nil || snap.Index.Total() == 0 {
		return []models.SearchHit{}, nil
	}

	neighbors, err := index.SearchNeighbors(ctx, s.embedder, query, snap.Index, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	out := make([]models.SearchHit, 0, len(neighbors))
	for _, n := range neighbors {
		c := snap.Chunks[n.Position]
		out = append(out, models.SearchHit{
			Chunk:    c.Text,
			Source:   c.Source,
			Position: n.Position,
			Distance: n.Distance,
		})
	}
	return out, nil
}

// Search returns the topK chunks of scope nearest to query.
func (s *Service) Search(ctx context.Context, scope, query string, topK int) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, invalid("query", "please provide a non-empty query")
	}
	if err := checkTopK("top_k", topK); err != nil {
		return SearchResult{}, err
	}

	hits, err := s.hits(ctx, scope, query, topK)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Query: query, Count: len(hits), Results: hits}, nil
}

// SearchRerank recalls initialK chunks and keeps the finalK best by
// reranker score.
func (s *Service) SearchRerank(ctx context.Context, scope, query string, initialK, finalK int) (RerankResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return RerankResult{}, invalid("query", "please provide a non-empty query")
	}
	if initialK == 0 {
		initialK = s.config.InitialK
	}
	if finalK == 0 {
		finalK = s.config.FinalK
	}
	if err := checkTopK("initial_k", initialK); err != nil {
		return RerankResult{}, err
	}
	if err := checkTopK("final_k", finalK); err != nil {
		return RerankResult{}, err
	}

	hits, err := s.hits(ctx, scope, query, initialK)
	if err != nil {
		return RerankResult{}, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk
	}

	scored, err := index.Rerank(ctx, s.reranker, query, texts, finalK)
	if err != nil {
		return RerankResult{}, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	out := make([]models.RerankHit, 0, len(scored))
	for _, sc := range scored {
		out = append(out, models.RerankHit{
			Chunk:          sc.Chunk,
			Source:         hits[sc.OriginalIndex].Source,
			RelevanceScore: math.Round(sc.Score*1e4) / 1e4,
			OriginalIndex:  sc.OriginalIndex,
		})
	}
	return RerankResult{Query: query, Count: len(out), Results: out}, nil
}

// withDefaults fills unset request fields from the scope's saved provider
// settings, then from the server defaults. Saved settings only apply when
// the request names no provider or the same one.
func (s *Service) withDefaults(ctx context.Context, scope string, req AskRequest) (AskRequest, error) {
	saved, ok, err := s.scopeConfig(ctx, scope)
	if err != nil {
		return req, err
	}
	if ok && (req.Provider == "" || req.Provider == saved.Provider) {
		req.Provider = saved.Provider
		if req.Model == "" {
			req.Model = saved.Model
		}
		if req.Credential == "" {
			req.Credential = saved.Credential
		}
	}

	if req.Provider == "" {
		req.Provider = s.config.DefaultProvider
	}
	if req.Model == "" {
		req.Model = s.config.DefaultModel
	}
	if req.Credential == "" {
		req.Credential = s.config.DefaultCredential
	}
	if req.TopK == 0 {
		req.TopK = s.config.TopK
	}
	return req, nil
}

// Answer searches scope for req.Question and generates a grounded answer.
// Nothing is persisted.
func (s *Service) Answer(ctx context.Context, scope string, req AskRequest) (models.Answer, error) {
	req, err := s.withDefaults(ctx, scope, req)
	if err != nil {
		return models.Answer{}, err
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return models.Answer{}, invalid("question", "please provide a non-empty question")
	}
	if err := checkTopK("top_k", req.TopK); err != nil {
		return models.Answer{}, err
	}
	if err := s.gateway.Validate(req.Provider, req.Model, req.Credential); err != nil {
		return models.Answer{}, err
	}

	hits, err := s.hits(ctx, scope, req.Question, req.TopK)
	if err != nil {
		return models.Answer{}, err
	}
	chunks := make([]string, len(hits))
	chunkSources := make([]string, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
		chunkSources[i] = h.Source
	}

	text, err := s.gateway.Generate(ctx, llm.Request{
		Query:      req.Question,
		Context:    chunks,
		Provider:   req.Provider,
		Model:      req.Model,
		Credential: req.Credential,
		History:    req.History,
	})
	if err != nil {
		return models.Answer{}, err
	}

	return models.Answer{
		Answer:       text,
		Sources:      dedupe(chunkSources),
		Chunks:       chunks,
		ChunkSources: chunkSources,
	}, nil
}

// Chat answers like Answer, replaying recent exchanges of the scope when the
// caller sends no transcript, and stores the exchange.
func (s *Service) Chat(ctx context.Context, scope string, req AskRequest) (models.ChatMessage, error) {
	if req.History == nil && s.config.HistoryTurns > 0 && strings.TrimSpace(req.Question) != "" {
		recent, err := s.history.List(ctx, scope, s.config.HistoryTurns)
		if err != nil {
			return models.ChatMessage{}, err
		}
		// recent is newest first; the prompt reads oldest first.
		for i := len(recent) - 1; i >= 0; i-- {
			req.History = append(req.History, models.ChatTurn{Question: recent[i].Question, Answer: recent[i].Answer})
		}
	}

	ans, err := s.Answer(ctx, scope, req)
	if err != nil {
		return models.ChatMessage{}, err
	}

	msg := models.ChatMessage{
		ID:           uuid.NewString(),
		Scope:        scope,
		Question:     strings.TrimSpace(req.Question),
		Answer:       ans.Answer,
		Sources:      ans.Sources,
		Chunks:       ans.Chunks,
		ChunkSources: ans.ChunkSources,
		CreatedAt:    time.Now().UTC(),
	}
	return s.history.Save(ctx, msg)
}

// ChatHistory lists the scope's stored exchanges, newest first.
func (s *Service) ChatHistory(ctx context.Context, scope string, limit int) ([]models.ChatMessage, error) {
	return s.history.List(ctx, scope, limit)
}

func (s *Service) ChatMessage(ctx context.Context, scope, id string) (models.ChatMessage, error) {
	return s.history.Get(ctx, scope, id)
}

// Citations numbers the context chunks a stored answer was generated from.
func (s *Service) Citations(ctx context.Context, scope, id string) (models.ChatMessage, []models.Citation, error) {
	msg, err := s.history.Get(ctx, scope, id)
	if err != nil {
		return models.ChatMessage{}, nil, err
	}
	out := make([]models.Citation, 0, len(msg.Chunks))
	for i, chunk := range msg.Chunks {
		source := "unknown"
		if i < len(msg.ChunkSources) {
			source = msg.ChunkSources[i]
		}
		out = append(out, models.Citation{Index: i + 1, Text: chunk, Source: source})
	}
	return msg, out, nil
}

// ExportChat renders a stored exchange as Markdown: question, answer,
// sources and the numbered context it was grounded on.
func (s *Service) ExportChat(ctx context.Context, scope, id string) (string, error) {
	msg, cites, err := s.Citations(ctx, scope, id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", msg.Question)
	fmt.Fprintf(&sb, "_%s_\n\n", msg.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "%s\n", msg.Answer)
	if len(msg.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, src := range msg.Sources {
			fmt.Fprintf(&sb, "- %s\n", src)
		}
	}
	if len(cites) > 0 {
		sb.WriteString("\n## Context\n")
		for _, c := range cites {
			fmt.Fprintf(&sb, "\n[%d] (%s)\n%s\n", c.Index, c.Source, c.Text)
		}
	}
	return sb.String(), nil
}

// Feedback records an up or down rating on a stored answer. created is false
// when an earlier rating was replaced.
func (s *Service) Feedback(ctx context.Context, scope, chatID, rating, comment string) (models.Feedback, bool, error) {
	if rating != "up" && rating != "down" {
		return models.Feedback{}, false, invalid("rating", `rating must be "up" or "down"`)
	}
	return s.history.SaveFeedback(ctx, scope, models.Feedback{
		ChatID:    chatID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	})
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
