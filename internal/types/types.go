package types

import (
	"context"
	"iter"

	"github.com/xhad/pdfchat/internal/models"
)

// Core interfaces

// Extractor turns a document into a lazy, finite sequence of pages. A source
// that cannot be parsed fails with an *ExtractionError before any page is yielded.
type Extractor interface {
	Extract(ctx context.Context, data []byte, documentID, filename string) (iter.Seq2[models.Page, error], error)
}

type Chunker interface {
	// SplitPage splits one page, numbering chunks from firstIndex.
	SplitPage(page models.Page, firstIndex int) []models.Chunk
	Split(pages []models.Page) []models.Chunk
}

// Index stores embedded chunks and answers nearest-neighbour queries by text.
// Implementations are safe for concurrent use.
type Index interface {
	// AddDocumentChunks replaces every chunk previously stored for documentID.
	AddDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) (int, error)
	FindSimilarChunks(ctx context.Context, query string, k int) (models.RetrievalResult, error)
	HasDocument(ctx context.Context, documentID string) (bool, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Close()
}

// Responder sends a question and its retrieved context to a generation backend.
type Responder interface {
	Respond(ctx context.Context, req models.GenerationRequest) (string, error)
	Name() string
}
