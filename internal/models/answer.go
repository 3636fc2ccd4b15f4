package models

// AnswerState is a step of the per-question lifecycle.
type AnswerState string

const (
	StateReceived               AnswerState = "received"
	StateRetrieving             AnswerState = "retrieving"
	StateEmptyContext           AnswerState = "empty_context"
	StateContextFound           AnswerState = "context_found"
	StateGenerating             AnswerState = "generating"
	StateAnsweredWithoutContext AnswerState = "answered_without_context"
	StateAnswered               AnswerState = "answered"
	StateFailed                 AnswerState = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s AnswerState) Terminal() bool {
	switch s {
	case StateAnsweredWithoutContext, StateAnswered, StateFailed:
		return true
	}
	return false
}

// Answer is the reply to one question.
type Answer struct {
	Text    string
	Sources []string
	State   AnswerState
	Trace   []AnswerState
}

// GenerationRequest is everything a provider sees for one question.
type GenerationRequest struct {
	Question string
	Context  string
	History  []ConversationTurn
}
