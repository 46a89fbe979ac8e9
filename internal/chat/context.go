package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charlalabs/charla/internal/domain"
)

// PromptContext is the structured input to prompt assembly: everything the
// generation capability needs for one turn. Render is a pure function of this
// value, unit-testable without any network code.
type PromptContext struct {
	Dialect         string
	ExperienceLevel string
	Facts           *domain.FactMap
	Summary         string
	Recent          []*domain.Message
	NewMessage      string
}

// Render produces the bounded prompt string. Ordering is a contract: the
// introduction segment first, then each recent message as "sender: content",
// then the new user message as the final line.
func (p PromptContext) Render() string {
	summary := p.Summary
	if summary == "" {
		summary = SummarySentinel
	}
	facts, err := json.Marshal(p.Facts)
	if err != nil {
		facts = []byte("{}")
	}

	intro := fmt.Sprintf(`You are a Gen Z Spanish friend from %s,
and the user is a %s learner.
Facts about user: %s.
Here is a summary of earlier conversation: %s.`,
		p.Dialect, p.ExperienceLevel, facts, summary)

	lines := make([]string, 0, len(p.Recent)+2)
	lines = append(lines, intro)
	for _, msg := range p.Recent {
		lines = append(lines, renderMessage(msg))
	}
	lines = append(lines, fmt.Sprintf("user: %s", p.NewMessage))
	return strings.Join(lines, "\n")
}

func renderMessage(m *domain.Message) string {
	return fmt.Sprintf("%s: %s", m.Sender, m.Content)
}

// SplitWindow divides history into the part to summarize and the recency
// window, both in chronological order.
func SplitWindow(history []*domain.Message) (older, recent []*domain.Message) {
	if len(history) <= RecentWindow {
		return nil, history
	}
	return history[:len(history)-RecentWindow], history[len(history)-RecentWindow:]
}

// Assembler builds the per-turn prompt from history, profile, and the new
// user message, summarizing everything outside the recency window.
type Assembler struct {
	summarizer Summarizer
}

// NewAssembler creates a context assembler backed by the given summarizer.
func NewAssembler(summarizer Summarizer) *Assembler {
	return &Assembler{summarizer: summarizer}
}

// BuildPrompt assembles the complete prompt for one turn. A summarizer
// failure propagates: the turn aborts rather than silently degrading.
func (a *Assembler) BuildPrompt(ctx context.Context, history []*domain.Message, profile *domain.LearnerProfile, dialect, newMessage string) (string, error) {
	older, recent := SplitWindow(history)

	summary := ""
	if len(older) > 0 {
		rendered := make([]string, len(older))
		for i, msg := range older {
			rendered[i] = renderMessage(msg)
		}
		var err error
		summary, err = a.summarizer.Summarize(ctx, strings.Join(rendered, "\n"))
		if err != nil {
			return "", fmt.Errorf("summarize older history: %w", err)
		}
	}

	pc := PromptContext{
		Dialect:         dialect,
		ExperienceLevel: profile.ExperienceLevel,
		Facts:           profile.Facts,
		Summary:         summary,
		Recent:          recent,
		NewMessage:      newMessage,
	}
	return pc.Render(), nil
}
