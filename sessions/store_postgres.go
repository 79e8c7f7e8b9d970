package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Schema is the DDL for the content session table. The unique index on
// (enrollment_id, content_type) backs FindOrCreate; the conditional
// update in Pin backs the set-if-null pin write.
const Schema = `
CREATE TABLE IF NOT EXISTS content_sessions (
	id                TEXT PRIMARY KEY,
	enrollment_id     TEXT NOT NULL,
	content_type      TEXT NOT NULL,
	status            TEXT NOT NULL,
	pinned_ip_hash    TEXT,
	pinned_user_agent TEXT,
	pinned_at         TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (enrollment_id, content_type)
);`

// PostgresStore is the production Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a session store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindOrCreate(ctx context.Context, enrollmentID string, contentType ContentType) (*Session, error) {
	if enrollmentID == "" {
		return nil, errors.New("[PostgresStore.FindOrCreate] enrollmentID is required")
	}

	// The insert is a no-op when the pair already exists; the select then
	// returns whichever row won, so concurrent first accesses converge on
	// one record.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_sessions (id, enrollment_id, content_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (enrollment_id, content_type) DO NOTHING
	`, uuid.New().String(), enrollmentID, contentType, StatusInProgress, time.Now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresStore.FindOrCreate] insert")
	}

	sess, err := s.scanOne(ctx, `
		SELECT id, enrollment_id, content_type, status, pinned_ip_hash, pinned_user_agent, pinned_at, created_at
		FROM content_sessions
		WHERE enrollment_id = $1 AND content_type = $2
	`, enrollmentID, contentType)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresStore.FindOrCreate] select")
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.scanOne(ctx, `
		SELECT id, enrollment_id, content_type, status, pinned_ip_hash, pinned_user_agent, pinned_at, created_at
		FROM content_sessions
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, SessionNotFoundErr
		}
		return nil, errors.Wrap(err, "[PostgresStore.Get] select")
	}
	return sess, nil
}

func (s *PostgresStore) Pin(ctx context.Context, id, ipHash, userAgent string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE content_sessions
		SET pinned_ip_hash = $2, pinned_user_agent = $3, pinned_at = $4
		WHERE id = $1 AND pinned_ip_hash IS NULL
	`, id, ipHash, userAgent, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "[PostgresStore.Pin] update")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE content_sessions SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return errors.Wrap(err, "[PostgresStore.UpdateStatus] update")
	}
	if tag.RowsAffected() == 0 {
		return SessionNotFoundErr
	}
	return nil
}

func (s *PostgresStore) scanOne(ctx context.Context, sql string, args ...any) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, sql, args...).Scan(
		&sess.ID,
		&sess.EnrollmentID,
		&sess.ContentType,
		&sess.Status,
		&sess.PinnedIPHash,
		&sess.PinnedUserAgent,
		&sess.PinnedAt,
		&sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
