// Package identity resolves the authenticated learner for each request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/charlalabs/charla/internal/store"
)

type contextKey int

const userIDKey contextKey = iota

// Subjects come from the auth provider; keep the accepted shape tight so they
// are safe to use in filesystem paths and log lines.
var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9._:|@-]{1,128}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the given user ID. Exposed for
// handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func subjectFromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		// Browsers cannot set headers on WebSocket upgrades; accept the
		// subject as a query parameter there.
		auth = r.URL.Query().Get("token")
	}
	subject := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if !subjectPattern.MatchString(subject) {
		return ""
	}
	return subject
}

// Middleware authenticates the request's bearer subject and resolves it to a
// learner profile, creating one on first contact. Requests without a valid
// subject are rejected.
func Middleware(repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := subjectFromRequest(r)
			if subject == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"missing or invalid bearer token"}`))
				return
			}

			profile, err := repo.EnsureUser(r.Context(), subject)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"failed to resolve user"}`))
				return
			}

			ctx := WithUserID(r.Context(), profile.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
