package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/identity"
)

const maxSessionNameLen = 120

// SessionHandler handles session CRUD endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{sessionID}", h.Get)
		r.Put("/{sessionID}", h.Rename)
		r.Delete("/{sessionID}", h.Delete)
	})
}

// List returns the caller's sessions, most recently updated first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	sessions, err := h.repo.ListSessions(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list sessions", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type createSessionRequest struct {
	Dialect string `json:"dialect,omitempty"`
	Name    string `json:"session_name,omitempty"`
}

// Create starts a new conversation session for the caller.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		profile, err := h.repo.GetProfile(r.Context(), userID)
		if err != nil || profile == nil {
			slog.Error("failed to load profile for session create", "error", err, "user_id", userID)
			Error(w, http.StatusInternalServerError, "failed to create session")
			return
		}
		dialect = profile.Dialect
	}

	name := strings.TrimSpace(req.Name)
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}
	if name == "" {
		name = "unnamed"
	}

	now := time.Now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Dialect:   dialect,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.CreateSession(r.Context(), session); err != nil {
		slog.Error("failed to create session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("session created", "session_id", session.ID, "user_id", userID, "dialect", dialect)
	JSON(w, http.StatusCreated, session)
}

// Get returns one owned session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		slog.Error("failed to get session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, session)
}

type renameSessionRequest struct {
	Name string `json:"session_name"`
}

// Rename updates a session's display name.
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req renameSessionRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		Error(w, http.StatusBadRequest, "session_name is required")
		return
	}
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}

	session, err := h.repo.RenameSession(r.Context(), sessionID, userID, name)
	if err != nil {
		slog.Error("failed to rename session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to rename session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, session)
}

// Delete removes a session and its messages.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		slog.Error("failed to get session for delete", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	if err := h.repo.DeleteSession(r.Context(), sessionID, userID); err != nil {
		slog.Error("failed to delete session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	slog.Info("session deleted", "session_id", sessionID, "user_id", userID)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
