// Package chat implements the conversation pipeline: context assembly,
// history summarization, learner-fact extraction, and turn execution.
package chat

import (
	"context"
	"errors"

	"github.com/charlalabs/charla/internal/domain"
)

// RecentWindow is the number of trailing history messages always included
// verbatim in the prompt. Everything before the window is summarized.
const RecentWindow = 5

// SummarySentinel is rendered into the prompt when there is no older history
// to summarize. The downstream prompt literally contains this token.
const SummarySentinel = "N/A"

var (
	// ErrEmptyMessage is returned when a turn is requested with no message
	// text. The turn is not started and nothing is written.
	ErrEmptyMessage = errors.New("chat: message text required")

	// ErrSessionNotFound is returned when the session does not exist or does
	// not belong to the calling user. Ownership mismatches deliberately look
	// identical to missing sessions.
	ErrSessionNotFound = errors.New("chat: session not found")
)

// Summarizer collapses rendered conversation text into one summary string.
// It may fail with a transport error; callers treat that as a failure of the
// whole turn.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Annotator computes linguistic annotations for a bot reply. Implementations
// are best-effort: they return partial results on lookup misses and never
// fail the turn.
type Annotator interface {
	Annotate(ctx context.Context, text string) []domain.TokenAnnotation
}

// Publisher receives the two messages appended by a completed turn, for live
// delivery to websocket subscribers. Best-effort.
type Publisher interface {
	Publish(sessionID string, message *domain.Message)
}

// TurnResult is the outcome of one user-message-in / bot-reply-out cycle.
type TurnResult struct {
	SessionID   string                   `json:"session_id"`
	Reply       string                   `json:"reply"`
	Annotations []domain.TokenAnnotation `json:"tokens,omitempty"`
	UserMessage *domain.Message          `json:"-"`
	BotMessage  *domain.Message          `json:"-"`
}
