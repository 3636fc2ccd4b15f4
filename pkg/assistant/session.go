package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/pdfchat/internal/models"
)

// Session is one user's conversation. Its transcript lives only as long as the
// session and is never shared with other sessions.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu    sync.Mutex
	turns []models.ConversationTurn
}

func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
}

func (s *Session) Append(turns ...models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []models.ConversationTurn {
	return s.Recent(0)
}

// Recent returns a copy of the last n turns, or all of them when n <= 0.
func (s *Session) Recent(n int) []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]models.ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// Reset clears the transcript.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
