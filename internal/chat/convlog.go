package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogEvent is one logged conversation event.
type ConversationLogEvent struct {
	Timestamp  string `json:"ts"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	Channel    string `json:"channel"`
	Direction  string `json:"direction"`
	EventType  string `json:"event_type"`
	Content    string `json:"content"`
	ContentRaw string `json:"content_raw,omitempty"`
}

// ConversationLogger appends conversation events to per-session NDJSON files
// (dir/<user>/<session>.ndjson), and optionally to one global file. Writes
// happen on a background worker; when the queue is full events are dropped,
// never blocking a turn.
type ConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger

	queue chan ConversationLogEvent
	done  chan struct{}
	once  sync.Once
}

// NewConversationLogger creates a conversation logger and starts its worker.
// A disabled config yields a logger whose Log is a no-op.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (*ConversationLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &ConversationLogger{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return l, nil
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("conversation logger: queue size must be > 0")
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("conversation logger: create dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("conversation logger: create global dir: %w", err)
		}
	}

	l.queue = make(chan ConversationLogEvent, cfg.QueueSize)
	go l.run()
	return l, nil
}

// Log enqueues an event. Drops it when the queue is full or the logger is
// disabled.
func (l *ConversationLogger) Log(event ConversationLogEvent) {
	if l.queue == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event.Content = cleanForReadability(event.ContentRaw)

	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", event.UserID, "session_id", event.SessionID)
	}
}

// Close stops the worker after draining queued events.
func (l *ConversationLogger) Close() error {
	l.once.Do(func() {
		if l.queue != nil {
			close(l.queue)
			<-l.done
		}
	})
	return nil
}

func (l *ConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			dir := filepath.Join(l.cfg.Dir, sanitizePathComponent(event.UserID))
			path := filepath.Join(dir, sanitizePathComponent(event.SessionID)+".ndjson")
			if err := appendLine(dir, path, line); err != nil {
				l.logger.Warn("failed to write conversation log", "path", path, "error", err)
			}
		}
		if l.cfg.GlobalEnabled {
			if err := appendLine(filepath.Dir(l.cfg.GlobalPath), l.cfg.GlobalPath, line); err != nil {
				l.logger.Warn("failed to write global conversation log", "path", l.cfg.GlobalPath, "error", err)
			}
		}
	}
}

func appendLine(dir, path string, line []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(line)
	return err
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._:-]`)
)

// cleanForReadability strips ANSI escape sequences and non-printable control
// characters so log lines stay grep-able.
func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, clean)
	return strings.TrimSpace(clean)
}

func sanitizePathComponent(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}
