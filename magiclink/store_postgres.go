package magiclink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Schema is the DDL for the link table. The conditional update in
// MarkRedeemed backs the single-use guarantee.
const Schema = `
CREATE TABLE IF NOT EXISTS magic_links (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	enrollment_id TEXT NOT NULL,
	course_id     TEXT NOT NULL DEFAULT '',
	secret_hash   BYTEA NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	redeemed_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL
);`

// PostgresStore is the production Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a link store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, link *Link) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO magic_links (id, user_id, enrollment_id, course_id, secret_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, link.ID, link.UserID, link.EnrollmentID, link.CourseID, link.SecretHash, link.ExpiresAt.UTC(), link.CreatedAt.UTC())
	return errors.Wrap(err, "[PostgresStore.Create] insert")
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Link, error) {
	var link Link
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, enrollment_id, course_id, secret_hash, expires_at, redeemed_at, created_at
		FROM magic_links
		WHERE id = $1
	`, id).Scan(
		&link.ID,
		&link.UserID,
		&link.EnrollmentID,
		&link.CourseID,
		&link.SecretHash,
		&link.ExpiresAt,
		&link.RedeemedAt,
		&link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[PostgresStore.Get] select")
	}
	return &link, nil
}

func (s *PostgresStore) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE magic_links SET redeemed_at = $2 WHERE id = $1 AND redeemed_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "[PostgresStore.MarkRedeemed] update")
	}
	return tag.RowsAffected() == 1, nil
}
