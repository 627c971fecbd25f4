package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/repository"
)

func conservative(string) model.RiskProfile {
	return model.RiskProfile{Name: "conservative", MaxTradesPerDay: 3, DailyStopPct: -1.5}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCheckWithinLimits(t *testing.T) {
	a := NewAggregator(repository.NewMemoryRiskRepo(), conservative)
	if err := a.Check(context.Background(), "u1", model.ExchangeBinance); err != nil {
		t.Fatalf("fresh day should pass: %v", err)
	}
}

func TestMaxTradesExceeded(t *testing.T) {
	a := NewAggregator(repository.NewMemoryRiskRepo(), conservative)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := a.Check(ctx, "u1", model.ExchangeBinance); err != nil {
			t.Fatalf("trade %d should pass: %v", i, err)
		}
		if _, err := a.RecordOutcome(ctx, "u1", model.ExchangeBinance, decimal.Zero); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	err := a.Check(ctx, "u1", model.ExchangeBinance)
	if !apperrors.Is(err, apperrors.ErrMaxTradesExceeded) {
		t.Fatalf("expected MAX_TRADES_EXCEEDED, got %v", err)
	}

	// The other exchange has its own counters.
	if err := a.Check(ctx, "u1", model.ExchangeIBKR); err != nil {
		t.Fatalf("limits must be per exchange: %v", err)
	}
}

func TestDailyStopHit(t *testing.T) {
	a := NewAggregator(repository.NewMemoryRiskRepo(), conservative)
	ctx := context.Background()

	if _, err := a.RecordOutcome(ctx, "u1", model.ExchangeBinance, decimal.NewFromFloat(-1.6)); err != nil {
		t.Fatalf("record: %v", err)
	}
	err := a.Check(ctx, "u1", model.ExchangeBinance)
	if !apperrors.Is(err, apperrors.ErrDailyStopHit) {
		t.Fatalf("expected DAILY_STOP_HIT, got %v", err)
	}
}

func TestDailyStopBoundaryInclusive(t *testing.T) {
	a := NewAggregator(repository.NewMemoryRiskRepo(), conservative)
	ctx := context.Background()

	// Exactly at the stop counts as hit.
	_, _ = a.RecordOutcome(ctx, "u1", model.ExchangeBinance, decimal.NewFromFloat(-1.5))
	err := a.Check(ctx, "u1", model.ExchangeBinance)
	if !apperrors.Is(err, apperrors.ErrDailyStopHit) {
		t.Fatalf("pnl == stop must hit, got %v", err)
	}
}

func TestUTCDayRollover(t *testing.T) {
	repo := repository.NewMemoryRiskRepo()
	day1 := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	a := NewAggregator(repo, conservative).WithClock(fixedClock(day1))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = a.RecordOutcome(ctx, "u1", model.ExchangeBinance, decimal.NewFromFloat(-0.4))
	}
	if err := a.Check(ctx, "u1", model.ExchangeBinance); err == nil {
		t.Fatal("day one should be exhausted")
	}

	// Two minutes later it is a new UTC day and a fresh row.
	day2 := day1.Add(2 * time.Minute)
	a.WithClock(fixedClock(day2))
	if err := a.Check(ctx, "u1", model.ExchangeBinance); err != nil {
		t.Fatalf("new UTC day should reset limits: %v", err)
	}

	// The prior day's row is untouched.
	old, err := repo.Get(ctx, "u1", model.ExchangeBinance, model.UTCDay(day1))
	if err != nil {
		t.Fatalf("prior day row: %v", err)
	}
	if old.TradesToday != 3 {
		t.Fatalf("prior day must keep its counters, got %d", old.TradesToday)
	}
}

func TestLimitsFrozenAtRowCreation(t *testing.T) {
	repo := repository.NewMemoryRiskRepo()
	profile := model.RiskProfile{Name: "conservative", MaxTradesPerDay: 3, DailyStopPct: -1.5}
	a := NewAggregator(repo, func(string) model.RiskProfile { return profile })
	ctx := context.Background()

	if err := a.Check(ctx, "u1", model.ExchangeBinance); err != nil {
		t.Fatalf("check: %v", err)
	}

	// Profile loosened mid-day; the day in progress keeps its limits.
	profile = model.RiskProfile{Name: "loose", MaxTradesPerDay: 10, DailyStopPct: -5}
	state, err := a.Snapshot(ctx, "u1", model.ExchangeBinance)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if state.MaxTrades != 3 {
		t.Fatalf("limits must freeze at row creation, got %d", state.MaxTrades)
	}
}

func TestSnapshotCreatesRow(t *testing.T) {
	a := NewAggregator(repository.NewMemoryRiskRepo(), conservative)
	state, err := a.Snapshot(context.Background(), "u9", model.ExchangeIBKR)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if state.TradesToday != 0 || state.MaxTrades != 3 {
		t.Fatalf("unexpected fresh state: %+v", state)
	}
}
