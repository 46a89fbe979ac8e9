package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/llm"
)

// Cadence thresholds. Extraction runs on every turn of the bootstrap phase,
// then periodically, and whenever the fact store is still sparse. These are
// compatibility constants — tests elsewhere depend on the literal values.
const (
	bootstrapTurns  = 6
	extractInterval = 8
	sparseFactCount = 3
)

// maxNewFactsHint caps how many facts one extraction call may add. It is a
// prompt-level hint, not an enforced limit.
const maxNewFactsHint = 10

// Extractor decides when to run fact extraction, calls the extraction
// capability, and merges its untrusted output into the existing facts.
// Extraction is best-effort: every failure mode degrades to a no-op.
type Extractor struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewExtractor creates a fact extractor backed by the given completer.
func NewExtractor(completer llm.Completer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{completer: completer, logger: logger}
}

// ShouldExtract is the cadence policy. turnCount is the number of messages
// already in the session before this turn.
func (e *Extractor) ShouldExtract(turnCount, factCount int) bool {
	return turnCount <= bootstrapTurns ||
		turnCount%extractInterval == 0 ||
		factCount < sparseFactCount
}

// Update returns the fact mapping after this turn. existing may arrive as a
// FactMap, a serialized string, or nil — it is coerced before use. When the
// cadence policy skips this turn, or the capability call fails, or its output
// is malformed, the (coerced) input facts are returned unchanged.
func (e *Extractor) Update(ctx context.Context, userMessage, botReply string, existing any, turnCount int) *domain.FactMap {
	facts := domain.NormalizeFacts(existing)

	if !e.ShouldExtract(turnCount, facts.Len()) {
		return facts
	}

	out, err := e.completer.Complete(ctx, llm.UserMessage(buildExtractionPrompt(facts, userMessage, botReply)))
	if err != nil {
		e.logger.Warn("fact extraction call failed, keeping existing facts", "error", err)
		return facts
	}

	delta := parseFactDelta(out)
	if delta == nil {
		e.logger.Warn("fact extraction returned malformed output, keeping existing facts",
			"output_prefix", truncateForLog(out, 120))
		return facts
	}

	merged := facts.Clone()
	merged.Merge(delta)
	merged.Truncate(domain.FactLimit)
	return merged
}

func buildExtractionPrompt(facts *domain.FactMap, userMessage, botReply string) string {
	serialized, err := json.Marshal(facts)
	if err != nil {
		serialized = []byte("{}")
	}
	return fmt.Sprintf(`You maintain a fact store describing a language learner.
Known facts: %s.
The latest exchange was:
user: %s
bot: %s
Reply with a pure JSON object containing only NEW facts about the user learned from this exchange (maximum %d new facts). Keys are short descriptive phrases. Values may be strings, lists, or booleans. Reply with {} if there is nothing new. Do not repeat known facts and do not include any text outside the JSON object.`,
		serialized, userMessage, botReply, maxNewFactsHint)
}

// parseFactDelta parses the capability's untrusted output into a fact
// mapping. Returns nil if the output is not a JSON object after stripping
// any code-fence wrapping.
func parseFactDelta(out string) *domain.FactMap {
	cleaned := stripCodeFence(out)
	if cleaned == "" {
		return nil
	}
	delta := domain.NewFactMap()
	if err := json.Unmarshal([]byte(cleaned), delta); err != nil {
		return nil
	}
	return delta
}

// stripCodeFence removes a leading/trailing triple-backtick fence, with an
// optional language tag on the opening line.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop a language tag like "json" on the opening line.
		first := strings.TrimSpace(s[:idx])
		if !strings.ContainsAny(first, "{}") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
