package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/charlalabs/charla/internal/chat"
	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/identity"
)

// MessageHandler handles message history and turn execution endpoints.
type MessageHandler struct {
	*Handler
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(base *Handler) *MessageHandler {
	return &MessageHandler{Handler: base}
}

// RegisterRoutes registers message routes.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions/{sessionID}/messages", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Send)
	})
}

// List returns a session's messages in chronological order.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		slog.Error("failed to get session for message list", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to list messages", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// Send runs one conversation turn: the user's message in, the bot's
// annotated reply out.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.SendMessage(r.Context(), userID, sessionID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			Error(w, http.StatusBadRequest, "text is required")
		case errors.Is(err, chat.ErrSessionNotFound):
			Error(w, http.StatusNotFound, "session not found")
		default:
			slog.Error("turn failed", "error", err, "session_id", sessionID, "user_id", userID)
			Error(w, http.StatusBadGateway, "failed to generate reply")
		}
		return
	}

	JSON(w, http.StatusOK, result)
}
