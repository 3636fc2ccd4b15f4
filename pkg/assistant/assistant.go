// Package assistant wires extraction, chunking, indexing, retrieval and
// generation into the two entry points users see: ingesting a document and
// answering a question.
package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/internal/types"
	"github.com/xhad/pdfchat/pkg/retriever"
)

const (
	PolicyReplace = "replace"
	PolicyReject  = "reject"

	DefaultLocale       = "en"
	DefaultHistoryTurns = 6
)

var sentinels = map[string]string{
	"en": "I could not find relevant information in the documents.",
	"fr": "Je n'ai pas trouvé d'informations pertinentes dans les documents.",
}

var sourcesHeading = map[string]string{
	"en": "Sources:",
	"fr": "Sources :",
}

// NoInformation returns the reply given when retrieval finds nothing.
// Unknown locales fall back to English.
func NoInformation(locale string) string {
	if s, ok := sentinels[locale]; ok {
		return s
	}
	return sentinels[DefaultLocale]
}

type Config struct {
	Locale          string
	HistoryTurns    int
	DuplicatePolicy string
	TopK            int
}

type Assistant struct {
	extractor types.Extractor
	chunker   types.Chunker
	index     types.Index
	retriever *retriever.Retriever
	responder types.Responder
	config    Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(extractor types.Extractor, chunker types.Chunker, index types.Index, responder types.Responder, config Config) (*Assistant, error) {
	if extractor == nil || chunker == nil || index == nil || responder == nil {
		return nil, errors.New("assistant requires an extractor, a chunker, an index and a responder")
	}
	if config.Locale == "" {
		config.Locale = DefaultLocale
	}
	// A negative HistoryTurns disables transcript replay.
	if config.HistoryTurns == 0 {
		config.HistoryTurns = DefaultHistoryTurns
	}
	switch config.DuplicatePolicy {
	case "":
		config.DuplicatePolicy = PolicyReplace
	case PolicyReplace, PolicyReject:
	default:
		return nil, fmt.Errorf("unknown duplicate policy %q", config.DuplicatePolicy)
	}

	return &Assistant{
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		retriever: retriever.New(index, config.TopK),
		responder: responder,
		config:    config,
		inflight:  make(map[string]struct{}),
	}, nil
}

func (a *Assistant) Config() Config { return a.config }

func (a *Assistant) Index() types.Index { return a.index }

// Answer runs one question through retrieval and generation and records the
// exchange in the session. When nothing relevant is indexed the reply is the
// locale's no-information sentinel and the responder is not called. A
// generation failure is returned as an error together with the failed answer.
func (a *Assistant) Answer(ctx context.Context, session *Session, question string) (models.Answer, error) {
	ans := models.Answer{Sources: []string{}}
	advance := func(s models.AnswerState) {
		ans.State = s
		ans.Trace = append(ans.Trace, s)
	}

	advance(models.StateReceived)
	var history []models.ConversationTurn
	if a.config.HistoryTurns > 0 {
		history = session.Recent(a.config.HistoryTurns)
	}
	session.Append(models.ConversationTurn{Role: models.RoleUser, Content: question})

	advance(models.StateRetrieving)
	found, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		advance(models.StateFailed)
		return ans, err
	}

	if found.Empty() {
		advance(models.StateEmptyContext)
		ans.Text = NoInformation(a.config.Locale)
		advance(models.StateAnsweredWithoutContext)
		session.Append(models.ConversationTurn{Role: models.RoleAssistant, Content: ans.Text})
		return ans, nil
	}

	advance(models.StateContextFound)
	advance(models.StateGenerating)
	logger.Debug("session %s: generating with %s from %d chunks", session.ID, a.responder.Name(), len(found.Result))

	text, err := a.responder.Respond(ctx, models.GenerationRequest{
		Question: question,
		Context:  found.Context,
		History:  history,
	})
	if err != nil {
		logger.Warn("session %s: %v", session.ID, err)
		advance(models.StateFailed)
		return ans, err
	}

	ans.Text = text
	ans.Sources = found.Sources
	advance(models.StateAnswered)
	session.Append(models.ConversationTurn{Role: models.RoleAssistant, Content: a.FormatAnswer(ans)})
	return ans, nil
}

// FormatAnswer renders the answer text followed by its source list.
func (a *Assistant) FormatAnswer(ans models.Answer) string {
	return FormatAnswer(ans, a.config.Locale)
}

func FormatAnswer(ans models.Answer, locale string) string {
	if len(ans.Sources) == 0 {
		return ans.Text
	}
	heading, ok := sourcesHeading[locale]
	if !ok {
		heading = sourcesHeading[DefaultLocale]
	}

	var b strings.Builder
	b.WriteString(ans.Text)
	b.WriteString("\n\n")
	b.WriteString(heading)
	for _, s := range ans.Sources {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}

// IngestRequest is one document to index. DocumentID is derived from the
// content when empty.
type IngestRequest struct {
	Data       []byte
	Filename   string
	DocumentID string
}

// DocumentID returns a stable id for the document bytes.
func DocumentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// Ingest extracts, chunks and indexes one document, replacing or rejecting an
// existing document with the same id according to the duplicate policy.
func (a *Assistant) Ingest(ctx context.Context, req IngestRequest) (models.IngestResult, error) {
	if req.DocumentID == "" {
		req.DocumentID = DocumentID(req.Data)
	}
	result := models.IngestResult{DocumentID: req.DocumentID, Filename: req.Filename}

	release, err := a.claim(ctx, req.DocumentID)
	if err != nil {
		result.Err = err
		return result, err
	}
	defer release()

	pages, err := a.extractor.Extract(ctx, req.Data, req.DocumentID, req.Filename)
	if err != nil {
		result.Err = err
		return result, err
	}

	var chunks []models.Chunk
	for page, err := range pages {
		if err != nil {
			result.Err = err
			return result, err
		}
		result.Pages++
		chunks = append(chunks, a.chunker.SplitPage(page, len(chunks))...)
	}
	logger.Debug("%s: %d pages, %d chunks", req.Filename, result.Pages, len(chunks))

	n, err := a.index.AddDocumentChunks(ctx, req.DocumentID, chunks)
	if err != nil {
		result.Err = err
		return result, err
	}
	result.ChunksIndexed = n
	logger.Info("indexed %s as %s (%d chunks)", req.Filename, req.DocumentID, n)
	return result, nil
}

// claim marks documentID as being ingested. Under the reject policy it fails
// when the document is already indexed or another ingestion of it is running.
func (a *Assistant) claim(ctx context.Context, documentID string) (func(), error) {
	if a.config.DuplicatePolicy != PolicyReject {
		return func() {}, nil
	}

	a.mu.Lock()
	if _, busy := a.inflight[documentID]; busy {
		a.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", documentID, types.ErrDuplicateDocument)
	}
	a.inflight[documentID] = struct{}{}
	a.mu.Unlock()

	release := func() {
		a.mu.Lock()
		delete(a.inflight, documentID)
		a.mu.Unlock()
	}

	exists, err := a.index.HasDocument(ctx, documentID)
	if err != nil {
		release()
		return nil, err
	}
	if exists {
		release()
		return nil, fmt.Errorf("%s: %w", documentID, types.ErrDuplicateDocument)
	}
	return release, nil
}
