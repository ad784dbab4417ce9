package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/GoPolymarket/fundgate/internal/middleware"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
	"github.com/jmoiron/sqlx"
)

// PostgresIdempotencyStore shares idempotency keys between gateway instances
// when Redis is not configured. A key left in processing for longer than
// lockTimeout is treated as abandoned and handed to the next caller.
type PostgresIdempotencyStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewPostgresIdempotencyStore(db *sqlx.DB, lockTimeout time.Duration) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db, lockTimeout: lockTimeout}
	_ = store.ensureSchema(context.Background())
	return store
}

type idempotencyRow struct {
	Status     int       `db:"status_code"`
	Body       []byte    `db:"response_body"`
	CreatedAt  time.Time `db:"created_at"`
	Processing bool      `db:"processing"`
}

func (s *PostgresIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx := context.Background()
	now := time.Now().UTC()
	stale := now.Add(-s.lockTimeout)
	if s.lockTimeout <= 0 {
		stale = time.Time{}
	}

	var locked string
	err := s.db.GetContext(ctx, &locked, `
		INSERT INTO idempotency_keys (key, processing, created_at)
		VALUES ($1, true, $2)
		ON CONFLICT (key) DO UPDATE
			SET processing = true, created_at = EXCLUDED.created_at, status_code = 0, response_body = NULL
			WHERE idempotency_keys.processing AND idempotency_keys.created_at < $3
		RETURNING key
	`, key, now, stale)
	switch {
	case err == nil:
		return nil, false
	case !errors.Is(err, sql.ErrNoRows):
		logger.Warn("idempotency lock failed", "error", err)
		return nil, false
	}

	var row idempotencyRow
	err = s.db.GetContext(ctx, &row, `
		SELECT status_code, COALESCE(response_body, ''::bytea) AS response_body, created_at, processing
		FROM idempotency_keys
		WHERE key = $1
	`, key)
	if err != nil {
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:     row.Status,
		Body:       row.Body,
		CreatedAt:  row.CreatedAt,
		Processing: row.Processing,
	}, true
}

func (s *PostgresIdempotencyStore) Save(key string, status int, body []byte) {
	_, err := s.db.ExecContext(context.Background(), `
		UPDATE idempotency_keys
		SET status_code = $2, response_body = $3, processing = false
		WHERE key = $1
	`, key, status, body)
	if err != nil {
		logger.Warn("idempotency save failed", "error", err)
	}
}

func (s *PostgresIdempotencyStore) Unlock(key string) {
	_, _ = s.db.ExecContext(context.Background(), `DELETE FROM idempotency_keys WHERE key = $1 AND processing`, key)
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_idempotency_keys_created ON idempotency_keys(created_at)`)
	return nil
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	return pruneOlderThan(ctx, s.db, "idempotency_keys", "created_at", olderThan)
}
