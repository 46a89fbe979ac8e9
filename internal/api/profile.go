package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/identity"
)

// ProfileHandler handles learner profile endpoints.
type ProfileHandler struct {
	*Handler
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(base *Handler) *ProfileHandler {
	return &ProfileHandler{Handler: base}
}

// RegisterRoutes registers profile routes.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/me", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
	})
}

// Get returns the caller's learner profile, including accumulated facts.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	profile, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil || profile == nil {
		slog.Error("failed to get profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	JSON(w, http.StatusOK, profileResponse{LearnerProfile: profile, FactCount: profile.FactCount()})
}

type profileResponse struct {
	*domain.LearnerProfile
	FactCount int `json:"fact_count"`
}

type updateProfileRequest struct {
	Dialect         string `json:"dialect"`
	ExperienceLevel string `json:"experience_level"`
}

var validExperienceLevels = map[string]bool{
	"beginner":     true,
	"intermediate": true,
	"advanced":     true,
}

// Update changes the caller's dialect and experience level. Facts are not
// editable through the API.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dialect := strings.TrimSpace(req.Dialect)
	level := strings.TrimSpace(strings.ToLower(req.ExperienceLevel))
	if dialect == "" {
		Error(w, http.StatusBadRequest, "dialect is required")
		return
	}
	if !validExperienceLevels[level] {
		Error(w, http.StatusBadRequest, "experience_level must be beginner, intermediate, or advanced")
		return
	}

	if err := h.repo.UpdateProfile(r.Context(), userID, dialect, level); err != nil {
		slog.Error("failed to update profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil || profile == nil {
		slog.Error("failed to reload profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	JSON(w, http.StatusOK, profileResponse{LearnerProfile: profile, FactCount: profile.FactCount()})
}
