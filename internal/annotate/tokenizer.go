// Package annotate augments bot replies with linguistic metadata: per-token
// lemma, part of speech, grammar features, and slang glossary lookups.
package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Token is one tokenizer result: a word's byte offset in the input plus its
// linguistic attributes.
type Token struct {
	Offset  int    `json:"offset"`
	Surface string `json:"surface"`
	Lemma   string `json:"lemma"`
	POS     string `json:"pos"`
	Morph   string `json:"morph,omitempty"`
}

// Tokenizer splits text into annotated tokens. Implementations may fail with
// transport errors; callers degrade to no annotations.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]Token, error)
}

const tokenizerTimeout = 10 * time.Second

// HTTPTokenizer calls the NLP sidecar service over JSON/HTTP.
type HTTPTokenizer struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTokenizer creates a tokenizer client for the sidecar at baseURL.
func NewHTTPTokenizer(baseURL string) (*HTTPTokenizer, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("tokenizer: address is required")
	}
	return &HTTPTokenizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: tokenizerTimeout},
	}, nil
}

// Tokenize posts the text to the sidecar and decodes its token list.
func (t *HTTPTokenizer) Tokenize(ctx context.Context, text string) ([]Token, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("tokenizer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tokenize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tokenizer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tokenizer: unexpected status %d: %s", resp.StatusCode, body)
	}

	var decoded struct {
		Tokens []Token `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("tokenizer: decode response: %w", err)
	}
	return decoded.Tokens, nil
}
