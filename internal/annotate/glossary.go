package annotate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Glossary maps slang lemmas to short English glosses. It is loaded once at
// startup and passed by reference into the annotator — no module-level cache.
type Glossary struct {
	entries map[string]string
}

// LoadGlossary reads a JSON object of lemma→gloss pairs from path.
func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("glossary: read %s: %w", path, err)
	}
	return ParseGlossary(data)
}

// ParseGlossary builds a glossary from raw JSON. Keys are matched
// case-insensitively.
func ParseGlossary(data []byte) (*Glossary, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("glossary: parse: %w", err)
	}
	entries := make(map[string]string, len(raw))
	for k, v := range raw {
		entries[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &Glossary{entries: entries}, nil
}

// EmptyGlossary returns a glossary with no entries, for when no glossary
// file is configured.
func EmptyGlossary() *Glossary {
	return &Glossary{entries: map[string]string{}}
}

// Lookup returns the gloss for a lemma, if any.
func (g *Glossary) Lookup(lemma string) (string, bool) {
	gloss, ok := g.entries[strings.ToLower(strings.TrimSpace(lemma))]
	return gloss, ok
}

// Len returns the number of glossary entries.
func (g *Glossary) Len() int {
	return len(g.entries)
}
