package models

import "fmt"

// Page is the text of one physical page of a source document.
type Page struct {
	DocumentID string
	Filename   string
	PageNumber int
	Text       string
}

// Chunk is a bounded segment of a page's text. ChunkIndex is the ordinal of the
// chunk within its whole document, not within its page.
type Chunk struct {
	DocumentID string
	Filename   string
	PageNumber int
	ChunkIndex int
	Text       string
}

// ID returns the stored identifier of the chunk.
func (c Chunk) ID() string {
	return ChunkID(c.DocumentID, c.ChunkIndex)
}

// Label is the provenance label shown to users, e.g. "doc.pdf (p.1)".
func (c Chunk) Label() string {
	return fmt.Sprintf("%s (p.%d)", c.Filename, c.PageNumber)
}

// ChunkID derives the stored identifier for a chunk from its document and ordinal.
func ChunkID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

type IndexedChunk struct {
	Chunk
	Embedding []float32
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is ranked by descending score and truncated to top-K.
type RetrievalResult []ScoredChunk

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role
	Content string
}

// IngestResult reports the outcome of indexing one document.
type IngestResult struct {
	DocumentID    string
	Filename      string
	Pages         int
	ChunksIndexed int
	Err           error
}
