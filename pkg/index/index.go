// Package index holds the in-memory embedding index: exact nearest-neighbour
// search over chunk vectors and a rerank stage on top of it.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xhad/ragdesk/internal/types"
)

// ErrIndexBuild means no index could be produced; callers keep the previous
// state or treat the index as absent.
var ErrIndexBuild = errors.New("index build failed")

// Index is an immutable flat L2 index. Entry i is the embedding of texts[i].
type Index struct {
	dim     int
	vectors [][]float32
	texts   []string
}

// Neighbor is one search result: a position in the index and its squared
// Euclidean distance to the query.
type Neighbor struct {
	Position int
	Distance float32
}

func (ix *Index) Dim() int {
	if ix == nil {
		return 0
	}
	return ix.dim
}

func (ix *Index) Total() int {
	if ix == nil {
		return 0
	}
	return len(ix.vectors)
}

// Build embeds every chunk. An empty chunk list yields an empty index.
func Build(ctx context.Context, embedder types.Embedder, chunks []string) (*Index, error) {
	if len(chunks) == 0 {
		return &Index{}, nil
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrIndexBuild)
	}

	vectors, err := embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrIndexBuild, len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: embedder returned empty vectors", ErrIndexBuild)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrIndexBuild, i, len(v), dim)
		}
	}

	texts := make([]string, len(chunks))
	copy(texts, chunks)
	return &Index{dim: dim, vectors: vectors, texts: texts}, nil
}

// Nearest returns the k closest entries to vec, closest first, ties broken by
// ascending position. k is clamped to [1, Total].
func (ix *Index) Nearest(vec []float32, k int) []Neighbor {
	total := ix.Total()
	if total == 0 {
		return nil
	}
	k = clamp(k, 1, total)

	all := make([]Neighbor, total)
	for i, v := range ix.vectors {
		all[i] = Neighbor{Position: i, Distance: squaredL2(vec, v)}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Distance < all[b].Distance
	})

	out := all[:k]
	// guard against anything outside the entry range
	valid := out[:0]
	for _, n := range out {
		if n.Position >= 0 && n.Position < total {
			valid = append(valid, n)
		}
	}
	return valid
}

// Search embeds query and returns the matched chunk texts with their
// positions. A nil or empty index returns empty results.
func Search(ctx context.Context, embedder types.Embedder, query string, ix *Index, topK int) ([]string, []int, error) {
	hits, err := SearchNeighbors(ctx, embedder, query, ix, topK)
	if err != nil {
		return nil, nil, err
	}
	texts := make([]string, 0, len(hits))
	positions := make([]int, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, ix.texts[h.Position])
		positions = append(positions, h.Position)
	}
	return texts, positions, nil
}

// SearchNeighbors is Search returning distances instead of texts.
func SearchNeighbors(ctx context.Context, embedder types.Embedder, query string, ix *Index, topK int) ([]Neighbor, error) {
	if ix.Total() == 0 {
		return nil, nil
	}
	vec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query vector has dimension %d, index has %d", len(vec), ix.dim)
	}
	return ix.Nearest(vec, topK), nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
