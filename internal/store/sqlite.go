package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charlalabs/charla/internal/domain"
	"github.com/charlalabs/charla/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const factsWriteAttempts = 3

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL UNIQUE,
		dialect TEXT NOT NULL,
		experience_level TEXT NOT NULL,
		facts_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		dialect TEXT NOT NULL,
		summary TEXT,
		session_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
		content TEXT NOT NULL,
		token_metadata TEXT,
		created_at INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureUser creates a user for the auth subject if none exists, then
// returns the learner profile.
func (s *SQLiteStore) EnsureUser(ctx context.Context, subject string) (*domain.LearnerProfile, error) {
	now := time.Now().Unix()
	query := `
	INSERT INTO users (id, subject, dialect, experience_level, facts_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, '{}', ?, ?)
	ON CONFLICT(subject) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), subject,
		domain.DefaultDialect, domain.DefaultExperienceLevel,
		now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, dialect, experience_level, facts_json, created_at, updated_at
		FROM users WHERE subject = ?`, subject)
	profile, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("load ensured user: %w", err)
	}
	return profile, nil
}

// GetProfile retrieves a learner profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.LearnerProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, dialect, experience_level, facts_json, created_at, updated_at
		FROM users WHERE id = ?`, userID)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return profile, nil
}

func scanProfile(row *sql.Row) (*domain.LearnerProfile, error) {
	var p domain.LearnerProfile
	var factsJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&p.UserID, &p.Subject, &p.Dialect, &p.ExperienceLevel, &factsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	// Facts may be absent or stored pre-serialized; normalize here so the
	// rest of the pipeline only ever sees a canonical FactMap.
	p.Facts = domain.NormalizeFacts(factsJSON.String)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// UpdateProfile updates a user's dialect and experience level.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID, dialect, experienceLevel string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET dialect = ?, experience_level = ?, updated_at = ?
		WHERE id = ?`,
		dialect, experienceLevel, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// ReadFacts returns the user's fact mapping.
func (s *SQLiteStore) ReadFacts(ctx context.Context, userID string) (*domain.FactMap, error) {
	var factsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT facts_json FROM users WHERE id = ?`, userID).Scan(&factsJSON)
	if err == sql.ErrNoRows {
		return domain.NewFactMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	return domain.NormalizeFacts(factsJSON.String), nil
}

// UpdateFacts overwrites the user's fact mapping. Retries on transient
// SQLite conflicts; last writer wins across concurrent turns.
func (s *SQLiteStore) UpdateFacts(ctx context.Context, userID string, facts *domain.FactMap) error {
	payload, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}

	for attempt := 1; ; attempt++ {
		_, err = s.db.ExecContext(ctx, `
			UPDATE users SET facts_json = ?, updated_at = ? WHERE id = ?`,
			string(payload), time.Now().Unix(), userID)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || attempt >= factsWriteAttempts {
			return fmt.Errorf("update facts: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	var summary interface{}
	if session.Summary != "" {
		summary = session.Summary
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, dialect, summary, session_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Dialect, summary, session.Name,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session scoped to its owner.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, dialect, summary, session_name, created_at, updated_at
		FROM sessions WHERE id = ? AND user_id = ?`, sessionID, userID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var sess domain.Session
	var summary sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &sess.UserID, &sess.Dialect, &summary, &sess.Name, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sess.Summary = summary.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// ListSessions returns the user's sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, dialect, summary, session_name, created_at, updated_at
		FROM sessions WHERE user_id = ?
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var sess domain.Session
		var summary sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Dialect, &summary, &sess.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.Summary = summary.String
		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// RenameSession updates the display name of an owned session.
func (s *SQLiteStore) RenameSession(ctx context.Context, sessionID, userID, name string) (*domain.Session, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET session_name = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		name, time.Now().Unix(), sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("rename session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rename session rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetSession(ctx, sessionID, userID)
}

// DeleteSession removes an owned session and all of its messages. Messages
// go first to satisfy the foreign key.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE id = ?`, sessionID).Scan(&owner)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check session owner: %w", err)
	}
	if owner != userID {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND user_id = ?`, sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in ascending creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, content, token_metadata, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var sender string
		var metadata sql.NullString
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &sender, &msg.Content, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Sender = domain.Sender(sender)
		msg.CreatedAt = time.Unix(createdAt, 0)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Annotations); err != nil {
				return nil, fmt.Errorf("decode message annotations: %w", err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// AppendMessage inserts a message row with the next per-session sequence
// number, keeping same-second inserts ordered.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	if !message.Sender.Valid() {
		return fmt.Errorf("append message: invalid sender %q", message.Sender)
	}

	var metadata interface{}
	if len(message.Annotations) > 0 {
		payload, err := json.Marshal(message.Annotations)
		if err != nil {
			return fmt.Errorf("marshal message annotations: %w", err)
		}
		metadata = string(payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender, content, token_metadata, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?))`,
		message.ID, message.SessionID, string(message.Sender), message.Content,
		metadata, message.CreatedAt.Unix(), message.SessionID,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// TouchSession bumps a session's updated_at timestamp.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
