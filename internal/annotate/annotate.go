package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/charlalabs/charla/internal/domain"
)

// posNames expands tokenizer part-of-speech tags for display.
var posNames = map[string]string{
	"NOUN":  "Noun",
	"VERB":  "Verb",
	"ADJ":   "Adjective",
	"ADV":   "Adverb",
	"PRON":  "Pronoun",
	"DET":   "Determiner",
	"ADP":   "Preposition",
	"CONJ":  "Conjunction",
	"NUM":   "Number",
	"PART":  "Particle",
	"INTJ":  "Interjection",
	"PROPN": "Proper Noun",
}

// Service renders token annotations for bot replies. Annotation is a pure
// post-processing step over the reply text: tolerant of lookup misses,
// best-effort on tokenizer failure, never fails the turn.
type Service struct {
	tokenizer Tokenizer
	glossary  *Glossary
	logger    *slog.Logger
}

// NewService creates an annotator from a tokenizer and a glossary.
func NewService(tokenizer Tokenizer, glossary *Glossary, logger *slog.Logger) *Service {
	if glossary == nil {
		glossary = EmptyGlossary()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tokenizer: tokenizer, glossary: glossary, logger: logger}
}

// Annotate tokenizes the text and builds one annotation per word token.
// Punctuation and whitespace tokens are skipped. A tokenizer failure yields
// no annotations.
func (s *Service) Annotate(ctx context.Context, text string) []domain.TokenAnnotation {
	tokens, err := s.tokenizer.Tokenize(ctx, text)
	if err != nil {
		s.logger.Warn("tokenizer unavailable, skipping annotations", "error", err)
		return nil
	}

	var annotations []domain.TokenAnnotation
	for _, tok := range tokens {
		if !isWord(tok.Surface) {
			continue
		}
		annotations = append(annotations, domain.TokenAnnotation{
			Index: tok.Offset,
			Word:  tok.Surface,
			Blurb: s.blurb(tok),
		})
	}
	return annotations
}

// blurb renders the tooltip text for one token: word, lemma, part of speech,
// grammar features, and any slang gloss, one per line.
func (s *Service) blurb(tok Token) string {
	parts := make([]string, 0, 4)

	word := fmt.Sprintf("**%s**", tok.Surface)
	if tok.Lemma != "" && tok.Lemma != strings.ToLower(tok.Surface) {
		word += fmt.Sprintf(" (from lemma: %s)", tok.Lemma)
	}
	parts = append(parts, word)

	if tok.POS != "" {
		name, ok := posNames[tok.POS]
		if !ok {
			name = tok.POS
		}
		parts = append(parts, "Part of Speech: "+name)
	}

	if tok.Morph != "" {
		parts = append(parts, "Grammar: "+tok.Morph)
	}

	lemma := tok.Lemma
	if lemma == "" {
		lemma = tok.Surface
	}
	if gloss, ok := s.glossary.Lookup(lemma); ok {
		parts = append(parts, "Slang: "+gloss)
	}

	return strings.Join(parts, "\n")
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
