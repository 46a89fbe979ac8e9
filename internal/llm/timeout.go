package llm

import (
	"context"
	"time"
)

type timeoutCompleter struct {
	inner   Completer
	timeout time.Duration
}

// WithTimeout caps every completion at d. Provider SDKs keep their own
// defaults; this bounds a turn regardless of provider.
func WithTimeout(inner Completer, d time.Duration) Completer {
	if d <= 0 {
		return inner
	}
	return &timeoutCompleter{inner: inner, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, messages)
}
