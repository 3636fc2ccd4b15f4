// Package store holds the vector indexes: an in-memory index, an embedded
// SQLite index and a networked pgvector index. All of them embed text with a
// langchaingo embeddings.Embedder and store chunks under "<document_id>_<ordinal>".
package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/pdfchat/internal/models"
)

// embedChunks embeds chunk texts and stamps every chunk with documentID.
func embedChunks(ctx context.Context, embedder embeddings.Embedder, documentID string, chunks []models.Chunk) ([]models.IndexedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	indexed := make([]models.IndexedChunk, len(chunks))
	for i, c := range chunks {
		c.DocumentID = documentID
		indexed[i] = models.IndexedChunk{Chunk: c, Embedding: vectors[i]}
	}
	return indexed, nil
}

// cosine similarity; 0 when either vector is zero or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank orders results by descending score, breaking ties by document id and
// chunk ordinal so identical inputs always give identical output, then keeps k.
func rank(results models.RetrievalResult, k int) models.RetrievalResult {
	slices.SortStableFunc(results, func(a, b models.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if c := strings.Compare(a.Chunk.DocumentID, b.Chunk.DocumentID); c != 0 {
			return c
		}
		return a.Chunk.ChunkIndex - b.Chunk.ChunkIndex
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}
