// Package extractor reads the text of PDF documents page by page.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

var _ types.Extractor = (*PDFExtractor)(nil)

// PDFExtractor extracts plain text from PDF documents.
type PDFExtractor struct{}

func New() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract opens data as a PDF and returns its pages lazily. Pages are decoded
// one at a time as the sequence is ranged over; ranging again re-reads the
// already opened document from the first page.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, documentID, filename string) (iter.Seq2[models.Page, error], error) {
	reader, err := open(data)
	if err != nil {
		return nil, &types.ExtractionError{Filename: filename, Err: err}
	}
	total := reader.NumPage()
	logger.Debug("opened %s: %d pages", filename, total)

	return func(yield func(models.Page, error) bool) {
		for i := 1; i <= total; i++ {
			if err := ctx.Err(); err != nil {
				yield(models.Page{}, err)
				return
			}

			text, err := pageText(reader, i)
			if err != nil {
				yield(models.Page{}, &types.ExtractionError{
					Filename: filename,
					Err:      fmt.Errorf("page %d: %w", i, err),
				})
				return
			}

			page := models.Page{
				DocumentID: documentID,
				Filename:   filename,
				PageNumber: i,
				Text:       text,
			}
			if !yield(page, nil) {
				return
			}
		}
	}, nil
}

// open recovers from the parser's panics on malformed input.
func open(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func pageText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed page: %v", r)
		}
	}()
	page := reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return cleanText(text), nil
}

// cleanText drops invalid UTF-8 and trims surrounding whitespace. Interior
// whitespace is kept so chunk offsets stay faithful to the page.
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}

// Collect drains a page sequence into a slice.
func Collect(pages iter.Seq2[models.Page, error]) ([]models.Page, error) {
	var out []models.Page
	for page, err := range pages {
		if err != nil {
			return out, err
		}
		out = append(out, page)
	}
	return out, nil
}
