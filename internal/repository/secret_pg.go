package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tradeops/riskgate/internal/model"
)

type PostgresSecretRepo struct {
	db *sqlx.DB
}

func NewPostgresSecretRepo(db *sqlx.DB) *PostgresSecretRepo {
	repo := &PostgresSecretRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresSecretRepo) Get(ctx context.Context, userID string, exchange model.Exchange) (*model.ExchangeSecret, error) {
	var s model.ExchangeSecret
	err := r.db.GetContext(ctx, &s, `
		SELECT user_id, exchange, api_key_encrypted, api_secret_encrypted,
		       key_version, quarantined, created_at, updated_at
		FROM exchange_secrets
		WHERE user_id = $1 AND exchange = $2
		LIMIT 1
	`, userID, exchange)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Upsert keeps the (user, exchange) pair unique: a second write
// replaces the ciphertexts in place.
func (r *PostgresSecretRepo) Upsert(ctx context.Context, s *model.ExchangeSecret) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchange_secrets (
			user_id, exchange, api_key_encrypted, api_secret_encrypted,
			key_version, quarantined, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,false,$6,$6)
		ON CONFLICT (user_id, exchange) DO UPDATE SET
			api_key_encrypted = EXCLUDED.api_key_encrypted,
			api_secret_encrypted = EXCLUDED.api_secret_encrypted,
			key_version = EXCLUDED.key_version,
			quarantined = false,
			updated_at = EXCLUDED.updated_at
	`, s.UserID, s.Exchange, s.APIKeyCiphertext, s.APISecretCiphertext, s.KeyVersion, now)
	return err
}

func (r *PostgresSecretRepo) Delete(ctx context.Context, userID string, exchange model.Exchange) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM exchange_secrets WHERE user_id = $1 AND exchange = $2`, userID, exchange)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresSecretRepo) ListByUser(ctx context.Context, userID string) ([]*model.ExchangeSecret, error) {
	return r.list(ctx, `
		SELECT user_id, exchange, api_key_encrypted, api_secret_encrypted,
		       key_version, quarantined, created_at, updated_at
		FROM exchange_secrets WHERE user_id = $1
		ORDER BY exchange ASC
	`, userID)
}

func (r *PostgresSecretRepo) ListAll(ctx context.Context) ([]*model.ExchangeSecret, error) {
	return r.list(ctx, `
		SELECT user_id, exchange, api_key_encrypted, api_secret_encrypted,
		       key_version, quarantined, created_at, updated_at
		FROM exchange_secrets
		ORDER BY user_id ASC, exchange ASC
	`)
}

func (r *PostgresSecretRepo) list(ctx context.Context, query string, args ...interface{}) ([]*model.ExchangeSecret, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*model.ExchangeSecret
	for rows.Next() {
		var s model.ExchangeSecret
		if err := rows.StructScan(&s); err != nil {
			return nil, err
		}
		results = append(results, &s)
	}
	return results, rows.Err()
}

// SwapIfKeyVersion re-points one record at new ciphertexts, but only
// while its key_version still matches expectTag. This is the per-record
// compare-and-swap rotation relies on instead of a store-wide lock.
func (r *PostgresSecretRepo) SwapIfKeyVersion(ctx context.Context, userID string, exchange model.Exchange, apiKeyCT, apiSecretCT, newTag, expectTag string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE exchange_secrets
		SET api_key_encrypted = $3, api_secret_encrypted = $4,
		    key_version = $5, updated_at = $6
		WHERE user_id = $1 AND exchange = $2 AND key_version = $7
	`, userID, exchange, apiKeyCT, apiSecretCT, newTag, time.Now().UTC(), expectTag)
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// SetQuarantined marks a record unusable after a decryption failure on
// the execution path.
func (r *PostgresSecretRepo) SetQuarantined(ctx context.Context, userID string, exchange model.Exchange, quarantined bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exchange_secrets SET quarantined = $3, updated_at = $4
		WHERE user_id = $1 AND exchange = $2
	`, userID, exchange, quarantined, time.Now().UTC())
	return err
}

func (r *PostgresSecretRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS exchange_secrets (
			user_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			api_key_encrypted TEXT NOT NULL,
			api_secret_encrypted TEXT NOT NULL,
			key_version TEXT NOT NULL,
			quarantined BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, exchange)
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_exchange_secrets_key_version ON exchange_secrets(key_version)`)
	return nil
}
