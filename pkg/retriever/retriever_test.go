package retriever_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
	"github.com/xhad/pdfchat/pkg/llm"
	"github.com/xhad/pdfchat/pkg/retriever"
	"github.com/xhad/pdfchat/pkg/store"
)

func scored(filename string, page, idx int, text string, score float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk: models.Chunk{DocumentID: "d", Filename: filename, PageNumber: page, ChunkIndex: idx, Text: text},
		Score: score,
	}
}

func TestBuildContext(t *testing.T) {
	result := models.RetrievalResult{
		scored("doc.pdf", 1, 0, "Paris is the capital of France.", 0.9),
		scored("notes.pdf", 3, 7, "Lyon is a major city.", 0.4),
	}

	want := "--- SOURCE: doc.pdf (Page 1) ---\nParis is the capital of France.\n\n" +
		"--- SOURCE: notes.pdf (Page 3) ---\nLyon is a major city."
	assert.Equal(t, want, retriever.BuildContext(result))

	for range 10 {
		assert.Equal(t, want, retriever.BuildContext(result))
	}
	assert.Empty(t, retriever.BuildContext(nil))
}

func TestSourceLabels(t *testing.T) {
	result := models.RetrievalResult{
		scored("doc.pdf", 2, 3, "b", 0.9),
		scored("doc.pdf", 1, 0, "a", 0.8),
		scored("doc.pdf", 2, 4, "c", 0.7),
		scored("other.pdf", 2, 0, "d", 0.6),
	}
	assert.Equal(t, []string{"doc.pdf (p.2)", "doc.pdf (p.1)", "other.pdf (p.2)"}, retriever.SourceLabels(result))
	assert.Empty(t, retriever.SourceLabels(models.RetrievalResult{}))
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	idx := store.NewMemoryIndex(llm.NewHashEmbedder(256))
	r := retriever.New(idx, 0)
	assert.Equal(t, retriever.DefaultTopK, r.TopK())

	got, err := r.Retrieve(ctx, "What is the capital of France?")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Empty(t, got.Sources)
	assert.Empty(t, got.Context)

	_, err = idx.AddDocumentChunks(ctx, "doc", []models.Chunk{
		{Filename: "doc.pdf", PageNumber: 1, ChunkIndex: 0, Text: "Paris is the capital of France."},
		{Filename: "doc.pdf", PageNumber: 2, ChunkIndex: 1, Text: "Lyon is a major city."},
	})
	require.NoError(t, err)

	got, err = r.Retrieve(ctx, "What is the capital of France?")
	require.NoError(t, err)
	require.False(t, got.Empty())
	assert.Equal(t, "doc.pdf (p.1)", got.Sources[0])
	assert.Contains(t, got.Context, "--- SOURCE: doc.pdf (Page 1) ---\nParis is the capital of France.")
}

type downIndex struct{ types.Index }

func (downIndex) FindSimilarChunks(context.Context, string, int) (models.RetrievalResult, error) {
	return nil, types.Unavailable("query chunks", errors.New("connection refused"))
}

func TestRetrieveIndexUnavailable(t *testing.T) {
	_, err := retriever.New(downIndex{}, 5).Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, types.ErrIndexUnavailable)
}
