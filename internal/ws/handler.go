package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/identity"
	"github.com/charlalabs/charla/internal/store"
)

const writeTimeout = 10 * time.Second

// Handler upgrades GET /ws/sessions/{sessionID} requests and streams the
// session's new messages to the client as JSON frames.
type Handler struct {
	repo  store.Repository
	hub   *Hub
	isDev bool
}

// NewHandler creates a WebSocket handler backed by the given hub.
func NewHandler(repo store.Repository, hub *Hub, isDev bool) *Handler {
	return &Handler{repo: repo, hub: hub, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	// Ownership check before the upgrade so unauthorized clients get a
	// plain HTTP status instead of a short-lived socket.
	session, err := h.repo.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	opts := &websocket.AcceptOptions{}
	if h.isDev {
		opts.OriginPatterns = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	slog.Info("websocket stream opened", "session_id", sessionID, "user_id", userID, "ip", identity.IPFromRequest(r))

	msgs, cancel := h.hub.Subscribe(sessionID, userID)
	defer cancel()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	// Reader loop: clients send nothing meaningful, but reading surfaces
	// close frames and pings so the write loop can stop promptly.
	go func() {
		defer cancelCtx()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "subscriber dropped")
				return
			}
			if err := h.writeMessage(ctx, conn, msg); err != nil {
				slog.Debug("websocket write failed", "error", err, "session_id", sessionID)
				return
			}
		}
	}
}

func (h *Handler) writeMessage(ctx context.Context, conn *websocket.Conn, msg *domain.Message) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}
