package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tradeops/riskgate/internal/middleware"
)

type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

func NewPostgresIdempotencyStore(db *sqlx.DB) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresIdempotencyStore) GetOrLock(key, requestHash string) (*middleware.IdempotencyRecord, bool) {
	ctx := context.Background()
	now := time.Now().UTC()
	result, _ := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, processing, created_at)
		VALUES ($1, $2, true, $3)
		ON CONFLICT (key) DO NOTHING
	`, key, requestHash, now)
	if result != nil {
		if rows, _ := result.RowsAffected(); rows > 0 {
			return nil, false
		}
	}

	var rec middleware.IdempotencyRecord
	err := s.db.QueryRowxContext(ctx, `
		SELECT status_code, response_body, request_hash, created_at, processing
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&rec.Status, &rec.Body, &rec.RequestHash, &rec.CreatedAt, &rec.Processing)
	if err != nil {
		return nil, false
	}
	return &rec, true
}

func (s *PostgresIdempotencyStore) Save(key string, status int, body []byte, requestHash string) {
	ctx := context.Background()
	_, _ = s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status_code = $2, response_body = $3, request_hash = $4, processing = false
		WHERE key = $1
	`, key, status, body, requestHash)
}

func (s *PostgresIdempotencyStore) Unlock(key string) {
	ctx := context.Background()
	_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			request_hash TEXT NOT NULL DEFAULT '',
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
