package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Type      string // hash, openai, ollama or google
	Model     string
	BaseURL   string // Ollama server URL
	APIKey    string
	Dimension int
	BatchSize int
}

// NewEmbedder returns the configured embedder. The hash embedder needs no
// network; the others call the provider's embedding endpoint.
func NewEmbedder(ctx context.Context, config EmbedderConfig) (embeddings.Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch config.Type {
	case "", "hash":
		return NewHashEmbedder(config.Dimension), nil
	case "openai":
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		client, err = openai.New(openai.WithToken(config.APIKey), openai.WithEmbeddingModel(config.Model))
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		client, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case "google":
		if config.Model == "" {
			config.Model = "embedding-001"
		}
		client, err = googleai.New(ctx, googleai.WithAPIKey(config.APIKey), googleai.WithDefaultEmbeddingModel(config.Model))
	default:
		return nil, fmt.Errorf("unknown embedder %q", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedder: %w", config.Type, err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// HashEmbedder maps text to a bag of hashed words. Each lowercase word that
// is not a stopword increments one of Dimension buckets (FNV-1a); the vector
// is then L2 normalised. It is deterministic and needs no corpus preparation,
// so documents can be indexed one at a time.
type HashEmbedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

var _ embeddings.Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 512
	}
	return &HashEmbedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (e *HashEmbedder) Dimension() int { return e.dimension }

func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, tok := range e.tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *HashEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// English and French stopwords
func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by", "with",
		"as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "these", "those", "from", "what",
		"which", "who", "how", "does", "do", "did", "so", "than", "into", "about", "can", "will",
		"le", "la", "les", "un", "une", "des", "du", "de", "et", "ou", "est", "sont", "en", "au", "aux", "que",
		"qui", "quoi", "dans", "pour", "par", "sur", "avec", "ce", "cette", "ces", "il", "elle", "quel", "quelle",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
