package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/store"
)

type fakeRepo struct {
	store.Repository
	subjects []string
	err      error
}

func (f *fakeRepo) EnsureUser(_ context.Context, subject string) (*domain.LearnerProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subject)
	return &domain.LearnerProfile{UserID: "user-" + subject, Subject: subject}, nil
}

func runMiddleware(repo store.Repository, r *http.Request) (*httptest.ResponseRecorder, string) {
	var gotUserID string
	handler := Middleware(repo)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w, gotUserID
}

func TestMiddlewareResolvesBearerSubject(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	r.Header.Set("Authorization", "Bearer alice@example.com")

	w, userID := runMiddleware(repo, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if userID != "user-alice@example.com" {
		t.Fatalf("unexpected user ID in context: %q", userID)
	}
	if len(repo.subjects) != 1 || repo.subjects[0] != "alice@example.com" {
		t.Fatalf("unexpected EnsureUser calls: %v", repo.subjects)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)

	w, _ := runMiddleware(repo, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(repo.subjects) != 0 {
		t.Fatal("EnsureUser should not be called without a token")
	}
}

func TestMiddlewareRejectsMalformedSubject(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	r.Header.Set("Authorization", "Bearer not a valid subject")

	w, _ := runMiddleware(repo, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	r := httptest.NewRequest(http.MethodGet, "/ws/sessions/abc?token=bob", nil)

	w, userID := runMiddleware(repo, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if userID != "user-bob" {
		t.Fatalf("unexpected user ID: %q", userID)
	}
}

func TestMiddlewareRepoFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{err: errors.New("db closed")}
	r := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	r.Header.Set("Authorization", "Bearer alice")

	w, _ := runMiddleware(repo, r)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
