// Package server exposes the assistant over a websocket. Every connection is
// one chat session.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/pkg/assistant"
	"github.com/xhad/pdfchat/pkg/scraper"
)

const (
	TypeQuestion  = "question"
	TypeIngest    = "ingest"
	TypeIngestURL = "ingest_url"
	TypeReset     = "reset"

	TypeAnswer   = "answer"
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeIngested = "ingested"
	TypeError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type       string   `json:"type"`
	Content    string   `json:"content,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Data       string   `json:"data,omitempty"` // base64 document bytes
	Sources    []string `json:"sources,omitempty"`
	State      string   `json:"state,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	Chunks     int      `json:"chunks,omitempty"`
}

type Config struct {
	Addr           string
	MaxUploadBytes int64
	Scraper        scraper.ScraperConfig
}

type WSServer struct {
	config    Config
	assistant *assistant.Assistant
	ingester  *assistant.Ingester
}

func NewWSServer(a *assistant.Assistant, ingester *assistant.Ingester, config Config) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = scraper.DefaultMaxBytes
	}
	return &WSServer{config: config, assistant: a, ingester: ingester}
}

// Handler serves /ws and /health.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.config.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting websocket server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// conn serialises writes; gorilla allows only one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	session *assistant.Session
}

func (c *conn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		logger.Warn("session %s: error sending message: %v", c.session.ID, err)
	}
}

func (c *conn) sendError(err error) {
	c.send(Message{Type: TypeError, Content: err.Error()})
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, session: assistant.NewSession()}
	logger.Info("session %s opened from %s", c.session.ID, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var background sync.WaitGroup
	defer background.Wait()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("session %s: error reading message: %v", c.session.ID, err)
			}
			cancel()
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError(fmt.Errorf("invalid message: %w", err))
			continue
		}

		switch msg.Type {
		case TypeQuestion:
			// Questions run in order so the transcript stays consistent.
			s.handleQuestion(ctx, c, msg)
		case TypeIngest:
			background.Add(1)
			go func() {
				defer background.Done()
				s.handleIngest(ctx, c, msg)
			}()
		case TypeIngestURL:
			background.Add(1)
			go func() {
				defer background.Done()
				s.handleIngestURL(ctx, c, msg)
			}()
		case TypeReset:
			c.session.Reset()
			c.send(Message{Type: TypeStatus, Content: "conversation cleared"})
		default:
			c.sendError(fmt.Errorf("unknown message type %q", msg.Type))
		}
	}
}

func (s *WSServer) handleQuestion(ctx context.Context, c *conn, msg Message) {
	question := strings.TrimSpace(msg.Content)
	if question == "" {
		c.sendError(errors.New("empty question"))
		return
	}

	ans, err := s.assistant.Answer(ctx, c.session, question)
	if err != nil {
		c.send(Message{Type: TypeError, Content: err.Error(), State: string(ans.State)})
		return
	}
	c.send(Message{
		Type:    TypeAnswer,
		Content: ans.Text,
		Sources: ans.Sources,
		State:   string(ans.State),
	})
}

func (s *WSServer) handleIngest(ctx context.Context, c *conn, msg Message) {
	if msg.Filename == "" {
		msg.Filename = "document.pdf"
	}
	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		c.sendError(fmt.Errorf("%s: invalid base64 data: %w", msg.Filename, err))
		return
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		c.sendError(fmt.Errorf("%s is larger than %d bytes", msg.Filename, s.config.MaxUploadBytes))
		return
	}

	s.ingest(ctx, c, assistant.IngestRequest{Data: data, Filename: msg.Filename})
}

func (s *WSServer) ingest(ctx context.Context, c *conn, req assistant.IngestRequest) {
	c.send(Message{Type: TypeStatus, Content: fmt.Sprintf("Processing %s", req.Filename), Filename: req.Filename})

	select {
	case res := <-s.ingester.Submit(ctx, req):
		if res.Err != nil {
			c.send(Message{Type: TypeError, Content: res.Err.Error(), Filename: req.Filename})
			return
		}
		c.send(Message{
			Type:       TypeIngested,
			Content:    fmt.Sprintf("Indexed %s: %d pages, %d chunks", res.Filename, res.Pages, res.ChunksIndexed),
			Filename:   res.Filename,
			DocumentID: res.DocumentID,
			Chunks:     res.ChunksIndexed,
		})
	case <-ctx.Done():
	}
}

func (s *WSServer) handleIngestURL(ctx context.Context, c *conn, msg Message) {
	target := strings.TrimSpace(msg.Content)
	if target != "" && !strings.HasPrefix(target, "http") {
		target = "https://" + target
	}
	c.send(Message{Type: TypeStatus, Content: fmt.Sprintf("Processing URL: %s", target)})

	cfg := s.config.Scraper
	cfg.BaseURL = target
	cfg.MaxBytes = s.config.MaxUploadBytes
	var fetched int32
	cfg.OnProgress = func(string) {
		n := atomic.AddInt32(&fetched, 1)
		c.send(Message{Type: TypeProgress, Content: fmt.Sprintf("Fetched %d URLs", n)})
	}

	sc, err := scraper.NewWithConfig(cfg)
	if err != nil {
		c.sendError(fmt.Errorf("failed to initialize scraper: %w", err))
		return
	}

	docs, err := sc.Scrape(ctx)
	if err != nil {
		c.sendError(fmt.Errorf("failed to scrape URL: %w", err))
	}
	c.send(Message{Type: TypeStatus, Content: fmt.Sprintf("Found %d documents", len(docs))})

	for _, doc := range docs {
		s.ingest(ctx, c, assistant.IngestRequest{Data: doc.Data, Filename: doc.Filename})
	}
}
