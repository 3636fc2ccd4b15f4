package processor

import (
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200
)

var _ types.Chunker = Processor{}

// ProcessorConfig sizes are counted in characters (runes), not bytes.
type ProcessorConfig struct {
	MaxChunkSize int
	Overlap      int
}

// Processor splits page text with a sliding character window.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = DefaultMaxChunkSize
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	// Ensure the window always advances
	if config.Overlap >= config.MaxChunkSize {
		config.Overlap = config.MaxChunkSize / 4
	}

	return Processor{
		config: config,
	}
}

func (p Processor) Config() ProcessorConfig {
	return p.config
}

// Split chunks every page in order, numbering chunks across the whole sequence.
func (p Processor) Split(pages []models.Page) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range pages {
		chunks = append(chunks, p.SplitPage(page, len(chunks))...)
	}
	return chunks
}

// SplitPage cuts the page into windows of MaxChunkSize characters advancing by
// MaxChunkSize-Overlap. The last window may be shorter; an empty page yields
// no chunks.
func (p Processor) SplitPage(page models.Page, firstIndex int) []models.Chunk {
	text := []rune(page.Text)
	if len(text) == 0 {
		return nil
	}

	size := p.config.MaxChunkSize
	stride := size - p.config.Overlap

	chunks := make([]models.Chunk, 0, CountChunks(len(text), size, p.config.Overlap))
	for start := 0; ; start += stride {
		end := min(start+size, len(text))
		chunks = append(chunks, models.Chunk{
			DocumentID: page.DocumentID,
			Filename:   page.Filename,
			PageNumber: page.PageNumber,
			ChunkIndex: firstIndex + len(chunks),
			Text:       string(text[start:end]),
		})
		if end == len(text) {
			break
		}
	}
	return chunks
}

// CountChunks is the number of windows SplitPage produces for a text of
// length characters.
func CountChunks(length, size, overlap int) int {
	switch {
	case length == 0:
		return 0
	case length <= overlap:
		return 1
	}
	stride := size - overlap
	return (length - overlap + stride - 1) / stride
}
