package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xhad/ragdesk/internal/types"
)

var ErrRerank = errors.New("rerank failed")

// Scored is a reranked candidate.
type Scored struct {
	Chunk         string
	Score         float64
	OriginalIndex int
}

// Rerank scores each candidate against query and returns the best topK,
// highest score first. Equal scores keep candidate order.
func Rerank(ctx context.Context, reranker types.Reranker, query string, candidates []string, topK int) ([]Scored, error) {
	if len(candidates) == 0 {
		return []Scored{}, nil
	}
	scores, err := reranker.Score(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerank, err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d scores for %d candidates", ErrRerank, len(scores), len(candidates))
	}

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Chunk: c, Score: scores[i], OriginalIndex: i}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })

	return out[:clamp(topK, 1, len(out))], nil
}

type CrossEncoderConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// CrossEncoder calls a rerank service speaking the text-embeddings-inference
// protocol: POST /rerank {query, texts} -> [{index, score}].
type CrossEncoder struct {
	config CrossEncoderConfig
	client *http.Client
}

func NewCrossEncoder(config CrossEncoderConfig) *CrossEncoder {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &CrossEncoder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type rerankRequest struct {
	Model string   `json:"model,omitempty"`
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (c *CrossEncoder) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Model: c.config.Model, Query: query, Texts: candidates})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing candidate %d", i)
		}
	}
	return scores, nil
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Lexical scores by token overlap (Ochiai coefficient). It needs no model and
// serves as the offline reranker.
type Lexical struct{}

func (Lexical) Score(_ context.Context, query string, candidates []string) ([]float64, error) {
	q := tokenSet(query)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = ochiai(q, tokenSet(c))
	}
	return scores, nil
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if _, ok := a[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
