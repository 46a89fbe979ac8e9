package domain

import (
	"time"
)

// Session identifies one continuous conversation between a learner and the
// persona. A session is owned by exactly one user; every message references
// exactly one session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Dialect   string    `json:"dialect"`
	Summary   string    `json:"summary,omitempty"`
	Name      string    `json:"session_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sender identifies who produced a message.
type Sender string

const (
	// SenderUser marks a learner-authored message.
	SenderUser Sender = "user"
	// SenderBot marks a persona reply.
	SenderBot Sender = "bot"
)

// Valid reports whether s is a known sender value.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Message is one turn's utterance within a session. Messages are immutable
// once created and strictly ordered by creation time within their session.
type Message struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"-"`
	Sender      Sender            `json:"sender"`
	Content     string            `json:"content"`
	Annotations []TokenAnnotation `json:"tokens,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TokenAnnotation carries linguistic metadata for one word of a bot reply:
// its byte offset in the text, the surface form, and a rendered blurb with
// lemma, part of speech, grammar, and glossary information.
type TokenAnnotation struct {
	Index int    `json:"index"`
	Word  string `json:"word"`
	Blurb string `json:"blurb"`
}
