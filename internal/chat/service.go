package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/llm"
	"github.com/charlalabs/charla/internal/store"
	"github.com/google/uuid"
)

// Service executes turns: it orchestrates context assembly, reply generation,
// fact extraction, annotation, and persistence for one incoming message.
type Service struct {
	repo      store.Repository
	generator llm.Completer
	assembler *Assembler
	extractor *Extractor
	annotator Annotator
	publisher Publisher
	convLog   *ConversationLogger
	logger    *slog.Logger
}

// ServiceConfig carries the collaborators for a turn service. Annotator,
// Publisher, and ConversationLogger are optional.
type ServiceConfig struct {
	Repo      store.Repository
	Generator llm.Completer
	Assembler *Assembler
	Extractor *Extractor
	Annotator Annotator
	Publisher Publisher
	ConvLog   *ConversationLogger
	Logger    *slog.Logger
}

// NewService creates a turn service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("chat: repository is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("chat: generator is required")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("chat: assembler is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("chat: extractor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      cfg.Repo,
		generator: cfg.Generator,
		assembler: cfg.Assembler,
		extractor: cfg.Extractor,
		annotator: cfg.Annotator,
		publisher: cfg.Publisher,
		convLog:   cfg.ConvLog,
		logger:    logger,
	}, nil
}

// SendMessage runs one full turn for the calling user. Summarizer, generator,
// and persistence failures abort the turn with no partial writes of the
// exchange; fact extraction and annotation are best-effort.
//
// Fact persistence is a read-modify-write without a per-user lock: two
// concurrent turns for the same user can both read the pre-turn mapping and
// the second write clobbers the first. Last writer wins at the storage layer.
func (s *Service) SendMessage(ctx context.Context, userID, sessionID, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	session, err := s.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load learner profile: %w", err)
	}
	if profile == nil {
		return nil, ErrSessionNotFound
	}

	history, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	dialect := session.Dialect
	if dialect == "" {
		dialect = profile.Dialect
	}

	prompt, err := s.assembler.BuildPrompt(ctx, history, profile, dialect, text)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	reply, err := s.generator.Complete(ctx, llm.UserMessage(prompt))
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	// Best-effort fact refresh from this turn's texts.
	updated := s.extractor.Update(ctx, text, reply, profile.Facts, len(history))
	if !updated.Equal(profile.Facts) {
		if err := s.repo.UpdateFacts(ctx, userID, updated); err != nil {
			return nil, fmt.Errorf("persist facts: %w", err)
		}
	}

	var annotations []domain.TokenAnnotation
	if s.annotator != nil {
		annotations = s.annotator.Annotate(ctx, reply)
	}

	now := time.Now()
	userMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    domain.SenderUser,
		Content:   text,
		CreatedAt: now,
	}
	botMsg := &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Sender:      domain.SenderBot,
		Content:     reply,
		Annotations: annotations,
		CreatedAt:   now,
	}

	if err := s.repo.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if err := s.repo.AppendMessage(ctx, botMsg); err != nil {
		// The model has already "said" something that is now unrecorded.
		// That cost is accepted: the caller is told the turn failed.
		return nil, fmt.Errorf("persist bot message: %w", err)
	}
	if err := s.repo.TouchSession(ctx, sessionID); err != nil {
		s.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
	}

	s.record(userID, sessionID, userMsg)
	s.record(userID, sessionID, botMsg)

	return &TurnResult{
		SessionID:   sessionID,
		Reply:       reply,
		Annotations: annotations,
		UserMessage: userMsg,
		BotMessage:  botMsg,
	}, nil
}

// record forwards a persisted message to the conversation log and the live
// publisher. Both are optional and best-effort.
func (s *Service) record(userID, sessionID string, msg *domain.Message) {
	if s.convLog != nil {
		direction := "inbound"
		eventType := "chat_user_message"
		if msg.Sender == domain.SenderBot {
			direction = "outbound"
			eventType = "chat_bot_message"
		}
		s.convLog.Log(ConversationLogEvent{
			UserID:     userID,
			SessionID:  sessionID,
			Channel:    "chat_http",
			Direction:  direction,
			EventType:  eventType,
			ContentRaw: msg.Content,
		})
	}
	if s.publisher != nil {
		s.publisher.Publish(sessionID, msg)
	}
}
