// Package policy is the order gate. Every prospective order runs
// through CheckPretrade before submission, and open positions consult
// CheckExit; both produce structured decisions, audit entries and
// metrics rather than bare booleans.
package policy

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/controls"
	"github.com/tradeops/riskgate/internal/guard"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/pkg/metrics"
	"github.com/tradeops/riskgate/internal/risk"
)

// Rejection reasons, reported verbatim in decisions and audit payloads.
const (
	ReasonTradingDisabled   = "TradingDisabled"
	ReasonExchangeDisabled  = "ExchangeDisabledForUser"
	ReasonTimeframeMismatch = "TimeframeMismatch"
	ReasonRRTooLow          = "RRTooLow"
	ReasonVolumeTooLow      = "VolumeTooLow"
	ReasonSpreadTooWide     = "SpreadTooWide"
	ReasonSlippageTooHigh   = "SlippageTooHigh"
	ReasonOutsideRTH        = "OutsideRTH"
	ReasonMacroEventBlock   = "MacroEventBlock"
	ReasonEarningsWithin24h = "EarningsWithin24h"
	ReasonMaxTrades         = "MaxTradesExceeded"
	ReasonDailyStop         = "DailyStopHit"
)

// Exit reasons, in evaluation priority order.
const (
	ExitStopLossHit      = "stop_loss_hit"
	ExitTakeProfitHit    = "take_profit_hit"
	ExitTimeLimitReached = "time_limit_reached"
	ExitTrendBreak       = "trend_break"
	ExitSignalReverse    = "signal_reverse"
	ExitEventRisk        = "event_risk_exit"
	ExitHold             = "hold"
)

type Engine struct {
	strategies guard.StrategyLookup
	controls   *controls.TradingControls
	guard      *guard.SegregationGuard
	risk       *risk.Aggregator
	ledger     *audit.Ledger
}

func NewEngine(strategies guard.StrategyLookup, tc *controls.TradingControls, g *guard.SegregationGuard, ra *risk.Aggregator, ledger *audit.Ledger) *Engine {
	return &Engine{
		strategies: strategies,
		controls:   tc,
		guard:      g,
		risk:       ra,
		ledger:     ledger,
	}
}

// CheckPretrade evaluates one prospective order. The kill-switch and
// segregation gates short-circuit; past those, every rule runs and a
// blocked decision carries all violated reasons so the operator sees
// the complete picture in one pass.
func (e *Engine) CheckPretrade(ctx context.Context, req model.PretradeRequest) (model.PretradeDecision, error) {
	enabled, err := e.controls.Enabled(ctx)
	if err != nil {
		return model.PretradeDecision{}, apperrors.NewTransient("read kill-switch", err)
	}
	if !enabled {
		return e.blocked(ctx, req, req.StrategyID, []string{ReasonTradingDisabled})
	}

	allowed, err := e.guard.Authorize(ctx, req.UserID, req.Exchange)
	if err != nil {
		return model.PretradeDecision{}, apperrors.NewTransient("check exchange assignment", err)
	}
	if !allowed {
		return e.blocked(ctx, req, req.StrategyID, []string{ReasonExchangeDisabled})
	}

	strategyID := req.StrategyID
	if strategyID == "" {
		assignment, err := e.guard.Resolve(ctx, req.UserID, req.Exchange)
		if err != nil {
			return model.PretradeDecision{}, err
		}
		strategyID = assignment.StrategyID
	}
	params, ok := e.strategies(strategyID)
	if !ok {
		return model.PretradeDecision{}, apperrors.NewValidationFailed(
			fmt.Sprintf("unknown strategy %q", strategyID))
	}

	var reasons []string
	if !timeframesMatch(req, params) {
		reasons = append(reasons, ReasonTimeframeMismatch)
	}
	if req.RREstimate < params.MinRR {
		reasons = append(reasons, ReasonRRTooLow)
	}
	reasons = append(reasons, exchangeReasons(req.Exchange, req.Market, params)...)

	if err := e.risk.Check(ctx, req.UserID, req.Exchange); err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrMaxTradesExceeded):
			reasons = append(reasons, ReasonMaxTrades)
		case apperrors.Is(err, apperrors.ErrDailyStopHit):
			reasons = append(reasons, ReasonDailyStop)
		default:
			return model.PretradeDecision{}, err
		}
	}

	if len(reasons) > 0 {
		return e.blocked(ctx, req, strategyID, reasons)
	}

	decision := model.PretradeDecision{Passed: true, Reasons: []string{}, StrategyID: strategyID}
	metrics.PretradeChecks.WithLabelValues(string(req.Exchange), "passed").Inc()
	if _, err := e.ledger.Record(ctx, req.UserID, audit.ActionPretradePassed, pretradePayload(req, strategyID, nil)); err != nil {
		return model.PretradeDecision{}, err
	}
	return decision, nil
}

// CheckExit reports whether an open position should be closed, and
// why. Rules are checked in a fixed priority: protective price levels
// first, then the hold-time limit, then structure signals, then
// event risk. The first hit wins.
func (e *Engine) CheckExit(ctx context.Context, req model.ExitRequest) (model.ExitDecision, error) {
	assignment, err := e.guard.Resolve(ctx, req.UserID, req.Exchange)
	if err != nil {
		return model.ExitDecision{}, err
	}
	params, ok := e.strategies(assignment.StrategyID)
	if !ok {
		return model.ExitDecision{}, apperrors.NewValidationFailed(
			fmt.Sprintf("unknown strategy %q", assignment.StrategyID))
	}

	reason := exitReason(req, params)
	decision := model.ExitDecision{ShouldExit: reason != ExitHold, Reason: reason}

	metrics.ExitChecks.WithLabelValues(string(req.Exchange), reason).Inc()
	action := audit.ActionExitHold
	if decision.ShouldExit {
		action = audit.ActionExitTriggered
	}
	if _, err := e.ledger.Record(ctx, req.UserID, action, map[string]any{
		"exchange":       string(req.Exchange),
		"symbol":         req.Symbol,
		"reason":         reason,
		"opened_minutes": req.OpenedMinutes,
	}); err != nil {
		return model.ExitDecision{}, err
	}
	return decision, nil
}

func exitReason(req model.ExitRequest, params model.StrategyParams) string {
	current := decimal.NewFromFloat(req.CurrentPrice)
	stop := decimal.NewFromFloat(req.StopLoss)
	take := decimal.NewFromFloat(req.TakeProfit)

	// Protective levels compare in the position's direction: a long
	// exits at or below its stop, a short at or above.
	long := req.Side == model.SideBuy
	if req.StopLoss > 0 {
		if (long && current.LessThanOrEqual(stop)) || (!long && current.GreaterThanOrEqual(stop)) {
			return ExitStopLossHit
		}
	}
	if req.TakeProfit > 0 {
		if (long && current.GreaterThanOrEqual(take)) || (!long && current.LessThanOrEqual(take)) {
			return ExitTakeProfitHit
		}
	}
	if params.MaxHoldMinutes > 0 && req.OpenedMinutes >= params.MaxHoldMinutes {
		return ExitTimeLimitReached
	}
	if req.TrendBreak {
		return ExitTrendBreak
	}
	if req.SignalReverse {
		return ExitSignalReverse
	}
	if req.Exchange == model.ExchangeIBKR && (req.Market.MacroEventBlock || req.Market.EarningsWithin24h) {
		return ExitEventRisk
	}
	return ExitHold
}

func timeframesMatch(req model.PretradeRequest, params model.StrategyParams) bool {
	return slices.Contains(params.TrendTFs, req.TrendTF) &&
		slices.Contains(params.SignalTFs, req.SignalTF) &&
		slices.Contains(params.TimingTFs, req.TimingTF)
}

func exchangeReasons(exchange model.Exchange, market model.MarketContext, params model.StrategyParams) []string {
	var reasons []string
	switch exchange {
	case model.ExchangeBinance:
		if market.Volume24hUSDT < params.MinVolume24hUSDT {
			reasons = append(reasons, ReasonVolumeTooLow)
		}
		if market.SpreadBps > params.MaxSpreadBps {
			reasons = append(reasons, ReasonSpreadTooWide)
		}
		if market.SlippageBps > params.MaxSlippageBps {
			reasons = append(reasons, ReasonSlippageTooHigh)
		}
	case model.ExchangeIBKR:
		if !market.InRTH {
			reasons = append(reasons, ReasonOutsideRTH)
		}
		if market.MacroEventBlock {
			reasons = append(reasons, ReasonMacroEventBlock)
		}
		if market.EarningsWithin24h {
			reasons = append(reasons, ReasonEarningsWithin24h)
		}
	}
	return reasons
}

func (e *Engine) blocked(ctx context.Context, req model.PretradeRequest, strategyID string, reasons []string) (model.PretradeDecision, error) {
	metrics.PretradeChecks.WithLabelValues(string(req.Exchange), "blocked").Inc()
	for _, r := range reasons {
		metrics.PretradeRejects.WithLabelValues(r).Inc()
	}
	if _, err := e.ledger.Record(ctx, req.UserID, audit.ActionPretradeBlocked, pretradePayload(req, strategyID, reasons)); err != nil {
		return model.PretradeDecision{}, err
	}
	return model.PretradeDecision{Passed: false, Reasons: reasons, StrategyID: strategyID}, nil
}

func pretradePayload(req model.PretradeRequest, strategyID string, reasons []string) map[string]any {
	payload := map[string]any{
		"exchange":    string(req.Exchange),
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"qty":         req.Qty,
		"strategy_id": strategyID,
		"rr_estimate": req.RREstimate,
	}
	if reasons != nil {
		payload["reasons"] = reasons
	}
	return payload
}
