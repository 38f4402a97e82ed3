package rag_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/rag"
)

func TestCheckName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"notes.txt", true},
		{"README.MD", true},
		{"report.pdf", true},
		{"memo.docx", true},
		{"", false},
		{" notes.txt", false},
		{"notes.exe", false},
		{"notes", false},
		{".hidden.txt", false},
		{"../notes.txt", false},
		{"dir/notes.txt", false},
		{`dir\notes.txt`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rag.CheckName(tt.name)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var verr *rag.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestDocumentStore(t *testing.T) {
	docs, err := rag.NewDocumentStore(t.TempDir())
	require.NoError(t, err)

	list, err := docs.List("alice")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, docs.Save("alice", "b.md", []byte("bb")))
	require.NoError(t, docs.Save("alice", "a.txt", []byte("a")))
	require.NoError(t, docs.Save("alice", "a.txt", []byte("aaa")))
	require.NoError(t, docs.Save("bob", "c.txt", []byte("c")))
	require.NoError(t, os.WriteFile(docs.Path("alice", "ignored.exe"), []byte("x"), 0o644))

	list, err = docs.List("alice")
	require.NoError(t, err)
	assert.Equal(t, []models.DocumentInfo{{Name: "a.txt", SizeBytes: 3}, {Name: "b.md", SizeBytes: 2}}, list)

	list, err = docs.List("bob")
	require.NoError(t, err)
	assert.Equal(t, []models.DocumentInfo{{Name: "c.txt", SizeBytes: 1}}, list)

	assert.ErrorIs(t, docs.Delete("bob", "a.txt"), types.ErrNotFound)
	assert.ErrorIs(t, docs.Delete("alice", "../bob/c.txt"), types.ErrNotFound)
	require.NoError(t, docs.Delete("alice", "a.txt"))

	list, err = docs.List("alice")
	require.NoError(t, err)
	assert.Equal(t, []models.DocumentInfo{{Name: "b.md", SizeBytes: 2}}, list)
}

func TestDocumentStore_ScopeNamesStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	docs, err := rag.NewDocumentStore(root)
	require.NoError(t, err)

	for _, s := range []string{"..", "../escape", "a/b", ""} {
		require.NoError(t, docs.Save(s, "x.txt", []byte("x")))
		assert.Contains(t, docs.Path(s, "x.txt"), root)
	}
}

func TestMemoryHistory(t *testing.T) {
	h := rag.NewMemoryHistory()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"m1", "m2", "m3"} {
		_, err := h.Save(ctx, models.ChatMessage{ID: id, Scope: "alice", Question: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	_, err := h.Save(ctx, models.ChatMessage{ID: "b1", Scope: "bob", CreatedAt: base})
	require.NoError(t, err)

	list, err := h.List(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m3", list[0].ID)
	assert.Equal(t, "m2", list[1].ID)

	_, err = h.Get(ctx, "bob", "m1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	fb, created, err := h.SaveFeedback(ctx, "alice", models.Feedback{ChatID: "m1", Rating: "up"})
	require.NoError(t, err)
	assert.True(t, created)
	first := fb.CreatedAt

	fb, created, err = h.SaveFeedback(ctx, "alice", models.Feedback{ChatID: "m1", Rating: "down"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, fb.CreatedAt)

	_, _, err = h.SaveFeedback(ctx, "bob", models.Feedback{ChatID: "m1", Rating: "up"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}
