package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
	"github.com/xhad/pdfchat/pkg/llm"
)

type fakeModel struct {
	reply    string
	err      error
	block    chan struct{} // when set, GenerateContent waits on it and ignores ctx
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.reply == "" {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func textOf(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.Len(t, msg.Parts, 1)
	part, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestNewChatEngine(t *testing.T) {
	engine, err := llm.NewChatEngine(llm.ChatConfig{Provider: "groq", Temperature: 0.5}, &fakeModel{})
	require.NoError(t, err)
	assert.Equal(t, "groq", engine.Name())

	_, err = llm.NewChatEngine(llm.ChatConfig{Temperature: 3}, &fakeModel{})
	assert.Error(t, err)

	_, err = llm.NewChatEngine(llm.ChatConfig{}, nil)
	assert.Error(t, err)
}

func TestRespond(t *testing.T) {
	model := &fakeModel{reply: "Paris."}
	engine, err := llm.NewChatEngine(llm.ChatConfig{Provider: "openai", SystemTemplate: "Test system template"}, model)
	require.NoError(t, err)

	answer, err := engine.Respond(context.Background(), models.GenerationRequest{
		Question: "What is the capital of France?",
		Context:  "--- SOURCE: doc.pdf (Page 1) ---\nParis is the capital of France.",
		History: []models.ConversationTurn{
			{Role: models.RoleUser, Content: "Hello"},
			{Role: models.RoleAssistant, Content: "Hi, ask me about your documents."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)

	require.Len(t, model.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, "Test system template", textOf(t, model.messages[0]))
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)

	last := textOf(t, model.messages[3])
	assert.Contains(t, last, "Paris is the capital of France.")
	assert.Contains(t, last, "Question: What is the capital of France?")
}

func TestRespondBackendError(t *testing.T) {
	engine, err := llm.NewChatEngine(llm.ChatConfig{Provider: "google"}, &fakeModel{err: errors.New("401 unauthorized")})
	require.NoError(t, err)

	_, err = engine.Respond(context.Background(), models.GenerationRequest{Question: "q", Context: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGeneration)

	var genErr *types.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "google", genErr.Provider)
	assert.False(t, genErr.Timeout)
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestRespondEmptyResponse(t *testing.T) {
	engine, err := llm.NewChatEngine(llm.ChatConfig{}, &fakeModel{})
	require.NoError(t, err)

	_, err = engine.Respond(context.Background(), models.GenerationRequest{Question: "q"})
	assert.ErrorIs(t, err, types.ErrGeneration)
}

func TestRespondTimeout(t *testing.T) {
	model := &fakeModel{reply: "too late", block: make(chan struct{})}
	defer close(model.block)

	engine, err := llm.NewChatEngine(llm.ChatConfig{Provider: "groq", Timeout: 50 * time.Millisecond}, model)
	require.NoError(t, err)

	started := time.Now()
	_, err = engine.Respond(context.Background(), models.GenerationRequest{Question: "q", Context: "c"})
	elapsed := time.Since(started)

	require.Error(t, err)
	var genErr *types.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.True(t, genErr.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)
}

func TestNewModel(t *testing.T) {
	_, err := llm.NewModel(context.Background(), llm.ProviderConfig{Name: "groq"})
	assert.ErrorContains(t, err, "missing API key")

	_, err = llm.NewModel(context.Background(), llm.ProviderConfig{Name: "anthropic", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown provider")

	model, err := llm.NewModel(context.Background(), llm.ProviderConfig{Name: "groq", APIKey: "gsk-test", Model: "llama-3.1-8b-instant"})
	require.NoError(t, err)
	assert.NotNil(t, model)

	engine, err := llm.NewWithConfig(context.Background(), llm.ChatConfig{}, llm.ProviderConfig{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", engine.Name())
}
