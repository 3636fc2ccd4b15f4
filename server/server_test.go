package server

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/pdftest"
	"github.com/xhad/pdfchat/pkg/assistant"
	"github.com/xhad/pdfchat/pkg/extractor"
	"github.com/xhad/pdfchat/pkg/llm"
	"github.com/xhad/pdfchat/pkg/processor"
	"github.com/xhad/pdfchat/pkg/store"
)

type echoResponder struct{}

func (echoResponder) Respond(_ context.Context, req models.GenerationRequest) (string, error) {
	return "Answer to: " + req.Question, nil
}

func (echoResponder) Name() string { return "echo" }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := assistant.New(
		extractor.New(),
		processor.NewWithConfig(processor.ProcessorConfig{MaxChunkSize: 500, Overlap: 50}),
		store.NewMemoryIndex(llm.NewHashEmbedder(256)),
		echoResponder{},
		assistant.Config{},
	)
	require.NoError(t, err)

	ingester := assistant.NewIngester(a.Ingest, 1, assistant.DefaultRetryPolicy)
	t.Cleanup(ingester.Close)

	srv := httptest.NewServer(NewWSServer(a, ingester, Config{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestQuestionWithoutDocuments(t *testing.T) {
	ws := dial(t, newTestServer(t))

	require.NoError(t, ws.WriteJSON(Message{Type: TypeQuestion, Content: "What is the capital of France?"}))
	msg := read(t, ws)
	assert.Equal(t, TypeAnswer, msg.Type)
	assert.Equal(t, assistant.NoInformation("en"), msg.Content)
	assert.Empty(t, msg.Sources)
	assert.Equal(t, string(models.StateAnsweredWithoutContext), msg.State)
}

func TestIngestThenAsk(t *testing.T) {
	ws := dial(t, newTestServer(t))

	data := base64.StdEncoding.EncodeToString(pdftest.Build("Paris is the capital of France.", "Lyon is a major city."))
	require.NoError(t, ws.WriteJSON(Message{Type: TypeIngest, Filename: "doc.pdf", Data: data}))

	status := read(t, ws)
	assert.Equal(t, TypeStatus, status.Type)
	assert.Equal(t, "doc.pdf", status.Filename)

	done := read(t, ws)
	require.Equal(t, TypeIngested, done.Type, done.Content)
	assert.Equal(t, 2, done.Chunks)
	assert.NotEmpty(t, done.DocumentID)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeQuestion, Content: "What is the capital of France?"}))
	answer := read(t, ws)
	assert.Equal(t, TypeAnswer, answer.Type)
	assert.Equal(t, "Answer to: What is the capital of France?", answer.Content)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "doc.pdf (p.1)", answer.Sources[0])
	assert.Equal(t, string(models.StateAnswered), answer.State)
}

func TestIngestErrors(t *testing.T) {
	ws := dial(t, newTestServer(t))

	require.NoError(t, ws.WriteJSON(Message{Type: TypeIngest, Filename: "x.pdf", Data: "%%%"}))
	msg := read(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "invalid base64")

	junk := base64.StdEncoding.EncodeToString([]byte("not a pdf"))
	require.NoError(t, ws.WriteJSON(Message{Type: TypeIngest, Filename: "junk.pdf", Data: junk}))
	assert.Equal(t, TypeStatus, read(t, ws).Type)
	msg = read(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "junk.pdf")
}

func TestBadMessages(t *testing.T) {
	ws := dial(t, newTestServer(t))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, TypeError, read(t, ws).Type)

	require.NoError(t, ws.WriteJSON(Message{Type: "shout"}))
	msg := read(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Content, "unknown message type")

	require.NoError(t, ws.WriteJSON(Message{Type: TypeQuestion, Content: "   "}))
	assert.Equal(t, TypeError, read(t, ws).Type)

	require.NoError(t, ws.WriteJSON(Message{Type: TypeReset}))
	assert.Equal(t, TypeStatus, read(t, ws).Type)
}
