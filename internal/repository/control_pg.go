package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const tradingEnabledKey = "trading_enabled"

type PostgresControlRepo struct {
	db *sqlx.DB
}

func NewPostgresControlRepo(db *sqlx.DB) *PostgresControlRepo {
	repo := &PostgresControlRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

// GetTradingEnabled returns (value, found). Absence means the
// configured default applies.
func (r *PostgresControlRepo) GetTradingEnabled(ctx context.Context) (bool, bool, error) {
	var enabled bool
	err := r.db.GetContext(ctx, &enabled,
		`SELECT bool_value FROM runtime_settings WHERE key = $1 LIMIT 1`, tradingEnabledKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return enabled, true, nil
}

func (r *PostgresControlRepo) SetTradingEnabled(ctx context.Context, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runtime_settings (key, bool_value, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET bool_value = EXCLUDED.bool_value, updated_at = EXCLUDED.updated_at
	`, tradingEnabledKey, enabled, time.Now().UTC())
	return err
}

func (r *PostgresControlRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runtime_settings (
			key TEXT PRIMARY KEY,
			bool_value BOOLEAN,
			updated_at TIMESTAMPTZ
		)
	`)
	return err
}
