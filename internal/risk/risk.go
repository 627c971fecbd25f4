// Package risk tracks per-user, per-exchange daily counters and
// enforces trade-count and drawdown limits. Counters are scoped to a
// UTC day; the "midnight reset" is simply a fresh row for the new day.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/pkg/metrics"
)

// StateRepo persists daily counters. ApplyOutcome must be atomic with
// respect to concurrent callers on the same row.
type StateRepo interface {
	GetOrCreate(ctx context.Context, userID string, exchange model.Exchange, day string, maxTrades int, dailyStop decimal.Decimal) (*model.DailyRiskState, error)
	Get(ctx context.Context, userID string, exchange model.Exchange, day string) (*model.DailyRiskState, error)
	ApplyOutcome(ctx context.Context, userID string, exchange model.Exchange, day string, pnlDelta decimal.Decimal) error
}

// ProfileResolver maps a user to their risk profile limits.
type ProfileResolver func(userID string) model.RiskProfile

// Aggregator is the daily risk gate. A clock is injected so tests can
// pin the UTC day boundary.
type Aggregator struct {
	repo    StateRepo
	profile ProfileResolver
	now     func() time.Time
}

func NewAggregator(repo StateRepo, profile ProfileResolver) *Aggregator {
	return &Aggregator{repo: repo, profile: profile, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Check verifies the user is inside today's limits. The day row is
// created on first touch with the profile's limits frozen in, so a
// later profile change does not rewrite a day already in progress.
func (a *Aggregator) Check(ctx context.Context, userID string, exchange model.Exchange) error {
	state, err := a.state(ctx, userID, exchange)
	if err != nil {
		return err
	}
	if state.TradesToday >= state.MaxTrades {
		metrics.RiskRejects.WithLabelValues("max_trades").Inc()
		return apperrors.New(apperrors.ErrMaxTradesExceeded,
			fmt.Sprintf("daily trade limit reached (%d/%d)", state.TradesToday, state.MaxTrades), nil)
	}
	if state.RealizedPnLToday.LessThanOrEqual(state.DailyStop) {
		metrics.RiskRejects.WithLabelValues("daily_stop").Inc()
		return apperrors.New(apperrors.ErrDailyStopHit,
			fmt.Sprintf("daily stop hit (pnl %s <= stop %s)", state.RealizedPnLToday, state.DailyStop), nil)
	}
	return nil
}

// RecordOutcome books one completed trade: increments the trade count
// and adds the realized PnL. Creates the day row first so an outcome
// landing right after midnight still books against the new day.
func (a *Aggregator) RecordOutcome(ctx context.Context, userID string, exchange model.Exchange, pnl decimal.Decimal) (*model.DailyRiskState, error) {
	day := model.UTCDay(a.now())
	if _, err := a.state(ctx, userID, exchange); err != nil {
		return nil, err
	}
	if err := a.repo.ApplyOutcome(ctx, userID, exchange, day, pnl); err != nil {
		return nil, apperrors.NewTransient("record trade outcome", err)
	}
	state, err := a.repo.Get(ctx, userID, exchange, day)
	if err != nil {
		return nil, apperrors.NewTransient("reload risk state", err)
	}
	return state, nil
}

// Snapshot returns today's counters, creating the row if needed.
func (a *Aggregator) Snapshot(ctx context.Context, userID string, exchange model.Exchange) (*model.DailyRiskState, error) {
	return a.state(ctx, userID, exchange)
}

func (a *Aggregator) state(ctx context.Context, userID string, exchange model.Exchange) (*model.DailyRiskState, error) {
	profile := a.profile(userID)
	day := model.UTCDay(a.now())
	state, err := a.repo.GetOrCreate(ctx, userID, exchange, day,
		profile.MaxTradesPerDay, decimal.NewFromFloat(profile.DailyStopPct))
	if err != nil {
		return nil, apperrors.NewTransient("load risk state", err)
	}
	return state, nil
}
