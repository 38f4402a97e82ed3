package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/ragdesk/internal/types"
)

const (
	EmbedBackendOllama = "ollama"
	EmbedBackendOpenAI = "openai"
	EmbedBackendHash   = "hash"
)

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Backend    string
	Model      string
	BaseURL    string
	APIKey     string
	BatchSize  int
	Dimensions int // hash backend only
}

// NewEmbedderWithConfig returns the configured embedding backend.
func NewEmbedderWithConfig(config EmbedderConfig) (types.Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}

	switch config.Backend {
	case "", EmbedBackendOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		client, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return newLangchainEmbedder(client, config.BatchSize)

	case EmbedBackendOpenAI:
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return newLangchainEmbedder(client, config.BatchSize)

	case EmbedBackendHash:
		return NewHashEmbedder(config.Dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embedding backend %q", config.Backend)
	}
}

func newLangchainEmbedder(client embeddings.EmbedderClient, batchSize int) (types.Embedder, error) {
	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return emb, nil
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder maps token counts into a fixed number of buckets and
// L2-normalises the result. It needs no model server, which makes it the
// embedder for offline use and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 1024
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		vec[f.Sum32()%uint32(h.dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
