package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"

	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

// ProviderConfig selects and authenticates one generation backend.
type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// NewModel builds the langchaingo model for a provider. Groq speaks the
// OpenAI wire protocol, so it reuses the OpenAI client with Groq's base URL.
func NewModel(ctx context.Context, p ProviderConfig) (llms.Model, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("%s: missing API key", p.Name)
	}

	switch p.Name {
	case ProviderGroq:
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = DefaultGroqBaseURL
		}
		return openai.New(
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
			openai.WithBaseURL(baseURL),
		)
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(p.APIKey), openai.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	case ProviderGoogle:
		return googleai.New(ctx,
			googleai.WithAPIKey(p.APIKey),
			googleai.WithDefaultModel(p.Model),
		)
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Name)
	}
}

// NewWithConfig creates a ChatEngine backed by the configured provider. The
// provider is fixed for the engine's lifetime.
func NewWithConfig(ctx context.Context, config ChatConfig, p ProviderConfig) (*ChatEngine, error) {
	model, err := NewModel(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	config.Provider = p.Name
	return NewChatEngine(config, model)
}
