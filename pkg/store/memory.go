package store

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

var _ types.Index = (*MemoryIndex)(nil)

// MemoryIndex is a session-lifetime index using brute-force cosine similarity.
// A document's chunk slice is never modified after it is stored; replacing a
// document swaps the whole slice under the write lock.
type MemoryIndex struct {
	embedder embeddings.Embedder

	mu   sync.RWMutex
	docs map[string][]models.IndexedChunk
}

func NewMemoryIndex(embedder embeddings.Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder: embedder,
		docs:     make(map[string][]models.IndexedChunk),
	}
}

func (s *MemoryIndex) AddDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) (int, error) {
	// Embedding can be slow, so it happens before taking the lock.
	indexed, err := embedChunks(ctx, s.embedder, documentID, chunks)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(indexed) == 0 {
		delete(s.docs, documentID)
		return 0, nil
	}
	s.docs[documentID] = indexed
	return len(indexed), nil
}

func (s *MemoryIndex) FindSimilarChunks(ctx context.Context, query string, k int) (models.RetrievalResult, error) {
	if k <= 0 || s.Len() == 0 {
		return models.RetrievalResult{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make(models.RetrievalResult, 0, s.lenLocked())
	for _, chunks := range s.docs {
		for _, ch := range chunks {
			results = append(results, models.ScoredChunk{
				Chunk: ch.Chunk,
				Score: cosine(vector, ch.Embedding),
			})
		}
	}
	s.mu.RUnlock()

	return rank(results, k), nil
}

func (s *MemoryIndex) HasDocument(_ context.Context, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[documentID]
	return ok, nil
}

func (s *MemoryIndex) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

// Len returns the number of stored chunks.
func (s *MemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lenLocked()
}

func (s *MemoryIndex) lenLocked() int {
	n := 0
	for _, chunks := range s.docs {
		n += len(chunks)
	}
	return n
}

func (s *MemoryIndex) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string][]models.IndexedChunk)
}
