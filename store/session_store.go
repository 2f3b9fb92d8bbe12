package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mabletask/tracker/models"
)

// SessionUpserter writes a session snapshot, replacing any earlier snapshot
// with the same session id.
type SessionUpserter interface {
	UpsertSession(ctx context.Context, rec models.SessionRecord) error
}

// PostgresSessionStore keeps one row per session in user_behavior_logs.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

const upsertSessionQuery = `
	INSERT INTO user_behavior_logs (session_id, user_id, log_data, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (session_id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		log_data = EXCLUDED.log_data,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresSessionStore) UpsertSession(ctx context.Context, rec models.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, upsertSessionQuery,
		rec.SessionID,
		rec.UserID,
		[]byte(rec.LogData),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// EnsureSchema creates the session log table when missing.
func (s *PostgresSessionStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_behavior_logs (
			session_id TEXT PRIMARY KEY,
			user_id    TEXT NULL,
			log_data   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create user_behavior_logs: %w", err)
	}
	return nil
}

// MultiSessionStore writes every snapshot to all of its backends.
type MultiSessionStore struct {
	stores []SessionUpserter
}

func NewMultiSessionStore(stores ...SessionUpserter) *MultiSessionStore {
	return &MultiSessionStore{stores: stores}
}

func (m *MultiSessionStore) Len() int {
	return len(m.stores)
}

// UpsertSession tries every backend and joins their errors.
func (m *MultiSessionStore) UpsertSession(ctx context.Context, rec models.SessionRecord) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.UpsertSession(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
