package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/model"
)

type PostgresRiskRepo struct {
	db *sqlx.DB
}

func NewPostgresRiskRepo(db *sqlx.DB) *PostgresRiskRepo {
	repo := &PostgresRiskRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

// GetOrCreate returns the day's row, inserting a fresh zeroed one on
// first access. The UTC-midnight "reset" is this row creation; prior
// days are never mutated, which keeps cross-day access race-free.
func (r *PostgresRiskRepo) GetOrCreate(ctx context.Context, userID string, exchange model.Exchange, day string, maxTrades int, dailyStop decimal.Decimal) (*model.DailyRiskState, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_risk_state (user_id, exchange, day, trades_today, realized_pnl_today, daily_stop, max_trades)
		VALUES ($1,$2,$3,0,0,$4,$5)
		ON CONFLICT (user_id, exchange, day) DO NOTHING
	`, userID, exchange, day, dailyStop, maxTrades)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, exchange, day)
}

func (r *PostgresRiskRepo) Get(ctx context.Context, userID string, exchange model.Exchange, day string) (*model.DailyRiskState, error) {
	var s model.DailyRiskState
	err := r.db.GetContext(ctx, &s, `
		SELECT user_id, exchange, to_char(day, 'YYYY-MM-DD') AS day,
		       trades_today, realized_pnl_today, daily_stop, max_trades
		FROM daily_risk_state
		WHERE user_id = $1 AND exchange = $2 AND day = $3
		LIMIT 1
	`, userID, exchange, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ApplyOutcome increments the day's counters in a single statement.
// The database serializes concurrent writers on the row, so there is
// no read-modify-write window to lose an update in.
func (r *PostgresRiskRepo) ApplyOutcome(ctx context.Context, userID string, exchange model.Exchange, day string, pnlDelta decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE daily_risk_state
		SET trades_today = trades_today + 1,
		    realized_pnl_today = realized_pnl_today + $4
		WHERE user_id = $1 AND exchange = $2 AND day = $3
	`, userID, exchange, day, pnlDelta)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRiskRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM daily_risk_state WHERE day < $1`, cutoff.Format("2006-01-02"))
	return err
}

func (r *PostgresRiskRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS daily_risk_state (
			user_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			day DATE NOT NULL,
			trades_today INTEGER NOT NULL DEFAULT 0,
			realized_pnl_today NUMERIC(20,8) NOT NULL DEFAULT 0,
			daily_stop NUMERIC(20,8) NOT NULL,
			max_trades INTEGER NOT NULL,
			PRIMARY KEY (user_id, exchange, day)
		)
	`)
	return err
}
