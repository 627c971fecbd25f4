// Package controls holds the global kill-switch. Trading is disabled
// by default; an operator flips it on explicitly and the flag survives
// process restarts through the repository.
package controls

import (
	"context"
	"fmt"

	"github.com/tradeops/riskgate/internal/audit"
)

// Repo persists the kill-switch flag. GetTradingEnabled returns
// (value, found); found==false means no operator has set the flag yet.
type Repo interface {
	GetTradingEnabled(ctx context.Context) (bool, bool, error)
	SetTradingEnabled(ctx context.Context, enabled bool) error
}

type TradingControls struct {
	repo           Repo
	ledger         *audit.Ledger
	defaultEnabled bool
}

func NewTradingControls(repo Repo, ledger *audit.Ledger, defaultEnabled bool) *TradingControls {
	return &TradingControls{repo: repo, ledger: ledger, defaultEnabled: defaultEnabled}
}

// Enabled reports whether trade submission is currently permitted.
// A storage error is surfaced, not swallowed: the kill-switch must
// fail closed at the caller, never silently pass.
func (t *TradingControls) Enabled(ctx context.Context) (bool, error) {
	enabled, found, err := t.repo.GetTradingEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("read trading flag: %w", err)
	}
	if !found {
		return t.defaultEnabled, nil
	}
	return enabled, nil
}

// Set flips the kill-switch and audits who flipped it.
func (t *TradingControls) Set(ctx context.Context, enabled bool, actor string) error {
	if err := t.repo.SetTradingEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("persist trading flag: %w", err)
	}
	action := audit.ActionTradingDisabled
	if enabled {
		action = audit.ActionTradingEnabled
	}
	_, err := t.ledger.Record(ctx, actor, action, map[string]any{"enabled": enabled})
	return err
}
