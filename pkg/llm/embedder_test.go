package llm_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragdesk/pkg/llm"
)

func TestHashEmbedder(t *testing.T) {
	emb := llm.NewHashEmbedder(256)
	ctx := context.Background()

	vecs, err := emb.EmbedDocuments(ctx, []string{"Paris is the capital of France.", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 256)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	for _, v := range vecs[1] {
		assert.Zero(t, v)
	}

	q, err := emb.EmbedQuery(ctx, "paris IS the capital of france")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], q)
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Backend: "hash", Dimensions: 64})
	require.NoError(t, err)
	assert.IsType(t, &llm.HashEmbedder{}, emb)

	emb, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Backend: "ollama"})
	require.NoError(t, err)
	assert.NotNil(t, emb)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Backend: "faiss"})
	assert.Error(t, err)
}
