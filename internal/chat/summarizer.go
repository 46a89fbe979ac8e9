package chat

import (
	"context"
	"fmt"

	"github.com/charlalabs/charla/internal/llm"
)

// LLMSummarizer implements Summarizer on top of a chat-completions model.
type LLMSummarizer struct {
	completer llm.Completer
}

// NewLLMSummarizer wraps a completer as a Summarizer.
func NewLLMSummarizer(completer llm.Completer) *LLMSummarizer {
	return &LLMSummarizer{completer: completer}
}

// Summarize collapses rendered conversation text into one summary string.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("Please summarize the following conversation:\n\n%s", text)
	summary, err := s.completer.Complete(ctx, llm.UserMessage(prompt))
	if err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	return summary, nil
}
