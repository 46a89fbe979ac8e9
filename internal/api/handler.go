// Package api provides HTTP handlers for the Charla API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/charlalabs/charla/internal/chat"
	"github.com/charlalabs/charla/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	svc  *chat.Service
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, svc *chat.Service) *Handler {
	return &Handler{repo: repo, svc: svc}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
