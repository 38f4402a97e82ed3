package rag_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/llm"
	"github.com/xhad/ragdesk/pkg/rag"
)

// switchEmbedder fails EmbedDocuments once broken is set.
type switchEmbedder struct {
	types.Embedder
	broken atomic.Bool
}

func (e *switchEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.broken.Load() {
		return nil, errors.New("embedding backend unavailable")
	}
	return e.Embedder.EmbedDocuments(ctx, texts)
}

func TestReindex_EmbedFailureDropsScope(t *testing.T) {
	emb := &switchEmbedder{Embedder: llm.NewHashEmbedder(1024)}
	f := newFixture(t, func(_ *rag.Config, c *rag.Components) { c.Embedder = emb })
	f.seed(t)
	f.reindex(t)
	ctx := context.Background()

	res, err := f.svc.Search(ctx, scope, "capital", 3)
	require.NoError(t, err)
	require.Equal(t, 3, res.Count)

	emb.broken.Store(true)
	rec, err := f.svc.SubmitReindex(ctx, scope)
	require.NoError(t, err)
	done := f.wait(t, rec.ID, models.TaskFailed)
	assert.Contains(t, done.Error, "embedding backend unavailable")

	res, err = f.svc.Search(ctx, scope, "capital", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, "degraded", f.svc.Status(scope).Status)
}

func TestReindex_ConcurrentSearch(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.reindex(t)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				res, err := f.svc.Search(context.Background(), scope, "capital of France", 5)
				if err != nil {
					errs <- err
					return
				}
				for _, hit := range res.Results {
					if hit.Source != "france.txt" && hit.Source != "germany.md" {
						errs <- errors.New("unexpected source " + hit.Source)
						return
					}
				}
				if res.Count > 3 {
					errs <- errors.New("more hits than chunks")
					return
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		f.reindex(t)
	}
	cancel()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	res, err := f.svc.Search(context.Background(), scope, "capital of France", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestReindex_ScopesIsolated(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	require.NoError(t, f.docs.Save("bob", "spain.txt", []byte("Madrid is the capital of Spain.")))
	ctx := context.Background()

	a, err := f.svc.SubmitReindex(ctx, scope)
	require.NoError(t, err)
	b, err := f.svc.SubmitReindex(ctx, "bob")
	require.NoError(t, err)
	f.wait(t, a.ID, models.TaskCompleted)
	f.wait(t, b.ID, models.TaskCompleted)

	res, err := f.svc.Search(ctx, scope, "capital", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	for _, hit := range res.Results {
		assert.NotEqual(t, "spain.txt", hit.Source)
	}

	res, err = f.svc.Search(ctx, "bob", "capital", 10)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "spain.txt", res.Results[0].Source)
}
