// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/charlalabs/charla/internal/domain"
)

// Repository defines the interface for persisting learner, session, and
// message data.
type Repository interface {
	// EnsureUser creates a user for the given auth subject if none exists and
	// returns the learner profile either way.
	EnsureUser(ctx context.Context, subject string) (*domain.LearnerProfile, error)

	// GetProfile retrieves a learner profile by user ID. Returns nil if the
	// user does not exist.
	GetProfile(ctx context.Context, userID string) (*domain.LearnerProfile, error)

	// UpdateProfile updates a user's dialect and experience level.
	UpdateProfile(ctx context.Context, userID, dialect, experienceLevel string) error

	// ReadFacts returns the user's fact mapping, normalized to a canonical
	// FactMap regardless of how it was stored.
	ReadFacts(ctx context.Context, userID string) (*domain.FactMap, error)

	// UpdateFacts overwrites the user's fact mapping. Last writer wins: there
	// is no per-user serialization across concurrent turns.
	UpdateFacts(ctx context.Context, userID string, facts *domain.FactMap) error

	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session scoped to its owner. Returns nil if the
	// session does not exist or belongs to a different user.
	GetSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)

	// ListSessions returns the user's sessions, most recently updated first.
	ListSessions(ctx context.Context, userID string) ([]*domain.Session, error)

	// RenameSession updates the display name of an owned session and returns
	// the updated row. Returns nil if the session is not owned by userID.
	RenameSession(ctx context.Context, sessionID, userID, name string) (*domain.Session, error)

	// DeleteSession removes an owned session and all of its messages.
	DeleteSession(ctx context.Context, sessionID, userID string) error

	// ListMessages returns a session's messages in ascending creation order.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// AppendMessage inserts a message row. Messages are append-only.
	AppendMessage(ctx context.Context, message *domain.Message) error

	// TouchSession bumps a session's updated_at timestamp.
	TouchSession(ctx context.Context, sessionID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
