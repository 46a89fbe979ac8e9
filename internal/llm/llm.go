// Package llm provides clients for the external language-model capabilities:
// reply generation, summarization, and fact extraction. All of them reduce to
// the same shape — a role-tagged message list in, one string out — so every
// client implements Completer.
package llm

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry of a role-tagged prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is a text-in/text-out call to an external LLM-style service.
// Errors are transport-class: unreachable service, timeout, rate limit, or a
// response with no usable content.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ErrEmptyCompletion is returned when a capability responds without any
// usable text content.
var ErrEmptyCompletion = errors.New("llm: completion contained no content")

// UserMessage is a convenience constructor for single-prompt calls.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
