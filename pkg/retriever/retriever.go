// Package retriever turns a question into framed document context and
// provenance labels.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

const DefaultTopK = 5

// Retrieval is what a question found in the index.
type Retrieval struct {
	Result  models.RetrievalResult
	Context string
	Sources []string
}

// Empty reports whether nothing relevant was found.
func (r Retrieval) Empty() bool { return len(r.Result) == 0 }

type Retriever struct {
	index types.Index
	topK  int
}

func New(index types.Index, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, topK: topK}
}

func (r *Retriever) TopK() int { return r.topK }

func (r *Retriever) Retrieve(ctx context.Context, question string) (Retrieval, error) {
	result, err := r.index.FindSimilarChunks(ctx, question, r.topK)
	if err != nil {
		return Retrieval{}, fmt.Errorf("retrieve: %w", err)
	}
	logger.Debug("retrieved %d chunks for %q", len(result), question)

	if len(result) == 0 {
		return Retrieval{Result: models.RetrievalResult{}}, nil
	}
	return Retrieval{
		Result:  result,
		Context: BuildContext(result),
		Sources: SourceLabels(result),
	}, nil
}

// BuildContext frames each chunk with its filename and page number, in result
// order, separated by blank lines.
func BuildContext(result models.RetrievalResult) string {
	var b strings.Builder
	for i, sc := range result {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- SOURCE: %s (Page %d) ---\n%s", sc.Chunk.Filename, sc.Chunk.PageNumber, sc.Chunk.Text)
	}
	return b.String()
}

// SourceLabels returns one "filename (p.N)" label per distinct page, in order of
// first appearance.
func SourceLabels(result models.RetrievalResult) []string {
	seen := make(map[string]struct{}, len(result))
	labels := make([]string, 0, len(result))
	for _, sc := range result {
		label := sc.Chunk.Label()
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return labels
}
