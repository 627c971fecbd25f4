package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tradeops/riskgate/internal/model"
)

type PostgresAssignmentRepo struct {
	db *sqlx.DB
}

func NewPostgresAssignmentRepo(db *sqlx.DB) *PostgresAssignmentRepo {
	repo := &PostgresAssignmentRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresAssignmentRepo) Get(ctx context.Context, userID string, exchange model.Exchange) (*model.StrategyAssignment, error) {
	var a model.StrategyAssignment
	err := r.db.GetContext(ctx, &a, `
		SELECT user_id, exchange, strategy_id, enabled, updated_at
		FROM strategy_assignments
		WHERE user_id = $1 AND exchange = $2
		LIMIT 1
	`, userID, exchange)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Upsert is idempotent: re-assigning the same tuple rewrites the same
// row and is not an error.
func (r *PostgresAssignmentRepo) Upsert(ctx context.Context, a *model.StrategyAssignment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO strategy_assignments (user_id, exchange, strategy_id, enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, exchange) DO UPDATE SET
			strategy_id = EXCLUDED.strategy_id,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`, a.UserID, a.Exchange, a.StrategyID, a.Enabled, time.Now().UTC())
	return err
}

// List returns all assignments, or one user's when userID is set.
func (r *PostgresAssignmentRepo) List(ctx context.Context, userID string) ([]*model.StrategyAssignment, error) {
	query := `SELECT user_id, exchange, strategy_id, enabled, updated_at FROM strategy_assignments`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY user_id ASC, exchange ASC`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*model.StrategyAssignment
	for rows.Next() {
		var a model.StrategyAssignment
		if err := rows.StructScan(&a); err != nil {
			return nil, err
		}
		results = append(results, &a)
	}
	return results, rows.Err()
}

func (r *PostgresAssignmentRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS strategy_assignments (
			user_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			strategy_id TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, exchange)
		)
	`)
	return err
}
