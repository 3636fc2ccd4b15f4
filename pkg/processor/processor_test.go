package processor_test

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/pkg/processor"
)

// reconstruct joins chunks of one page, dropping the overlap each later chunk repeats.
func reconstruct(chunks []models.Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func randomText(rng *rand.Rand, n int) string {
	alphabet := []rune("abcdefghij klmnopqrstuvwxyz.éàçü\n")
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(out)
}

func TestProcessor_SplitPage(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{MaxChunkSize: 10, Overlap: 3})

	page := models.Page{DocumentID: "d1", Filename: "doc.pdf", PageNumber: 2, Text: "abcdefghijklmnopqrstuvwxyz"}
	chunks := p.SplitPage(page, 4)

	require.Len(t, chunks, 4)
	assert.Equal(t, "abcdefghij", chunks[0].Text)
	assert.Equal(t, "hijklmnopq", chunks[1].Text)
	assert.Equal(t, "opqrstuvwx", chunks[2].Text)
	assert.Equal(t, "vwxyz", chunks[3].Text, "final partial window is kept")

	for i, c := range chunks {
		assert.Equal(t, 4+i, c.ChunkIndex)
		assert.Equal(t, 2, c.PageNumber)
		assert.Equal(t, "doc.pdf", c.Filename)
		assert.Equal(t, "d1", c.DocumentID)
	}
	assert.Equal(t, "d1_5", chunks[1].ID())
	assert.Equal(t, "doc.pdf (p.2)", chunks[1].Label())
}

func TestProcessor_EmptyPage(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	assert.Empty(t, p.SplitPage(models.Page{Text: ""}, 0))
}

func TestProcessor_Defaults(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	assert.Equal(t, 1000, p.Config().MaxChunkSize)
	assert.Equal(t, 0, p.Config().Overlap)

	clamped := processor.NewWithConfig(processor.ProcessorConfig{MaxChunkSize: 100, Overlap: 100})
	assert.Less(t, clamped.Config().Overlap, clamped.Config().MaxChunkSize)
}

func TestProcessor_Reconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	configs := []processor.ProcessorConfig{
		{MaxChunkSize: 1000, Overlap: 200},
		{MaxChunkSize: 7, Overlap: 0},
		{MaxChunkSize: 7, Overlap: 6},
		{MaxChunkSize: 50, Overlap: 13},
	}

	for _, cfg := range configs {
		p := processor.NewWithConfig(cfg)
		for trial := 0; trial < 40; trial++ {
			text := randomText(rng, rng.Intn(2500))
			chunks := p.SplitPage(models.Page{Text: text}, 0)

			assert.Equal(t, text, reconstruct(chunks, cfg.Overlap))
			assert.Len(t, chunks, processor.CountChunks(utf8.RuneCountInString(text), cfg.MaxChunkSize, cfg.Overlap))
			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), cfg.MaxChunkSize)
			}
		}
	}
}

func TestCountChunks(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		size    int
		overlap int
		want    int
	}{
		{"empty", 0, 1000, 200, 0},
		{"shorter than overlap", 150, 1000, 200, 1},
		{"single window", 1000, 1000, 200, 1},
		{"one past window", 1001, 1000, 200, 2},
		{"exact two windows", 1800, 1000, 200, 2},
		{"three windows", 1801, 1000, 200, 3},
		{"no overlap", 25, 10, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, processor.CountChunks(tt.length, tt.size, tt.overlap))

			p := processor.NewWithConfig(processor.ProcessorConfig{MaxChunkSize: tt.size, Overlap: tt.overlap})
			chunks := p.SplitPage(models.Page{Text: strings.Repeat("x", tt.length)}, 0)
			assert.Len(t, chunks, tt.want)
		})
	}
}

func TestProcessor_SplitKeepsPageOrder(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{MaxChunkSize: 5, Overlap: 1})

	pages := []models.Page{
		{DocumentID: "d", Filename: "a.pdf", PageNumber: 1, Text: "0123456789"},
		{DocumentID: "d", Filename: "a.pdf", PageNumber: 2, Text: ""},
		{DocumentID: "d", Filename: "a.pdf", PageNumber: 3, Text: "abcdef"},
	}
	chunks := p.Split(pages)

	require.Len(t, chunks, 5)
	var pageNumbers []int
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		pageNumbers = append(pageNumbers, c.PageNumber)
	}
	assert.Equal(t, []int{1, 1, 1, 3, 3}, pageNumbers)
}
