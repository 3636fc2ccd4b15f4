package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
)

const (
	DefaultSystemTemplate = "You are an educational assistant. Answer the question using only the document excerpts provided. " +
		"Cite the source file and page when you rely on an excerpt. If the excerpts do not contain the answer, say so. " +
		"Reply in the language of the question."
	DefaultContextTemplate = "Document excerpts:\n%s\n\nQuestion: %s"
	DefaultTimeout         = 60 * time.Second
)

// contentGenerator is the part of llms.Model the chat engine needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	SystemTemplate  string
	ContextTemplate string
}

// ChatEngine is the responder: it asks a provider model to answer a question
// from retrieved context.
type ChatEngine struct {
	config ChatConfig
	llm    contentGenerator
}

var _ types.Responder = (*ChatEngine)(nil)

// NewChatEngine wraps an already constructed provider model.
func NewChatEngine(config ChatConfig, model contentGenerator) (*ChatEngine, error) {
	if model == nil {
		return nil, errors.New("chat engine requires a model")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = DefaultSystemTemplate
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = DefaultContextTemplate
	}
	if config.Provider == "" {
		config.Provider = "llm"
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Name returns the provider behind this engine.
func (ce *ChatEngine) Name() string {
	return ce.config.Provider
}

// Messages builds the prompt: system template, replayed history, then the
// question framed with its context.
func (ce *ChatEngine) Messages(req models.GenerationRequest) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(req.History)+2)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate))
	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman,
		fmt.Sprintf(ce.config.ContextTemplate, req.Context, req.Question)))
	return content
}

type generation struct {
	resp *llms.ContentResponse
	err  error
}

// Respond generates an answer. It returns a *types.GenerationError when the
// provider fails, returns nothing, or does not answer within the timeout.
func (ce *ChatEngine) Respond(ctx context.Context, req models.GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	started := time.Now()
	done := make(chan generation, 1)
	go func() {
		resp, err := ce.llm.GenerateContent(ctx, ce.Messages(req),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithTemperature(ce.config.Temperature),
		)
		done <- generation{resp: resp, err: err}
	}()

	// A backend that ignores ctx must not hold the caller past the deadline.
	var out generation
	select {
	case out = <-done:
	case <-ctx.Done():
		out = generation{err: ctx.Err()}
	}

	if out.err != nil {
		timeout := errors.Is(out.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
		logger.Warn("%s generation failed after %s: %v", ce.config.Provider, time.Since(started), out.err)
		return "", &types.GenerationError{Provider: ce.config.Provider, Timeout: timeout, Err: out.err}
	}
	if out.resp == nil || len(out.resp.Choices) == 0 || out.resp.Choices[0] == nil {
		return "", &types.GenerationError{Provider: ce.config.Provider, Err: errors.New("no response from LLM")}
	}

	logger.Debug("%s answered in %s", ce.config.Provider, time.Since(started))
	return out.resp.Choices[0].Content, nil
}
