// Package service composes the engine's gates into the operations the
// API exposes: request preparation, gated test orders and the
// security posture report.
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/controls"
	"github.com/tradeops/riskgate/internal/guard"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/risk"
	"github.com/tradeops/riskgate/internal/vault"
)

type ExecutionService struct {
	vault         *vault.CredentialVault
	guard         *guard.SegregationGuard
	controls      *controls.TradingControls
	risk          *risk.Aggregator
	ledger        *audit.Ledger
	submitter     OrderSubmitter
	mode          string
	submitTimeout time.Duration
}

func NewExecutionService(v *vault.CredentialVault, g *guard.SegregationGuard, tc *controls.TradingControls, ra *risk.Aggregator, ledger *audit.Ledger, submitter OrderSubmitter, mode string, submitTimeout time.Duration) *ExecutionService {
	if submitTimeout <= 0 {
		submitTimeout = 5 * time.Second
	}
	if mode == "" {
		mode = "paper"
	}
	return &ExecutionService{
		vault:         v,
		guard:         g,
		controls:      tc,
		risk:          ra,
		ledger:        ledger,
		submitter:     submitter,
		mode:          mode,
		submitTimeout: submitTimeout,
	}
}

// Prepare builds a signed-request preview without submitting anything.
// It proves the stored credential decrypts and signs, exposing only a
// masked key and a signature prefix.
func (s *ExecutionService) Prepare(ctx context.Context, userID string, exchange model.Exchange, symbol string, side model.Side, qty float64) (*model.PrepareOut, error) {
	if _, err := s.guard.Resolve(ctx, userID, exchange); err != nil {
		return nil, err
	}
	cred, err := s.vault.Get(ctx, userID, exchange)
	if err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	payload := fmt.Sprintf("symbol=%s&side=%s&qty=%.8f&ts=%d",
		symbol, side, qty, time.Now().UnixMilli())
	mac := hmac.New(sha256.New, []byte(cred.APISecret))
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	out := &model.PrepareOut{
		Mode:             s.mode,
		Exchange:         string(exchange),
		Symbol:           symbol,
		Side:             string(side),
		Qty:              qty,
		APIKeyMasked:     vault.MaskKey(cred.APIKey),
		SignaturePreview: signature[:16] + "...",
	}
	if _, err := s.ledger.Record(ctx, userID, audit.ActionExecutionPrepare, map[string]any{
		"exchange": string(exchange),
		"symbol":   symbol,
		"side":     string(side),
		"qty":      qty,
		"mode":     s.mode,
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// TestOrder runs the full gate chain and hands the order to the
// submitter. Every gate that blocks surfaces as a typed error; an
// exchange failure is transient and retryable.
func (s *ExecutionService) TestOrder(ctx context.Context, userID string, exchange model.Exchange, symbol string, side model.Side, qty float64) (*model.SubmitResult, error) {
	enabled, err := s.controls.Enabled(ctx)
	if err != nil {
		return nil, apperrors.NewTransient("read kill-switch", err)
	}
	if !enabled {
		return nil, s.rejected(ctx, userID, exchange, symbol, apperrors.New(apperrors.ErrTradingDisabled,
			"trading is globally disabled", nil))
	}
	if _, err := s.guard.Resolve(ctx, userID, exchange); err != nil {
		return nil, s.rejected(ctx, userID, exchange, symbol, err)
	}
	if err := s.risk.Check(ctx, userID, exchange); err != nil {
		return nil, s.rejected(ctx, userID, exchange, symbol, err)
	}
	cred, err := s.vault.Get(ctx, userID, exchange)
	if err != nil {
		return nil, s.rejected(ctx, userID, exchange, symbol, err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	result, err := s.submitter.Submit(submitCtx, cred, symbol, side, qty)
	if err != nil {
		_, _ = s.ledger.Record(ctx, userID, audit.TestOrderAction(string(exchange), false), map[string]any{
			"symbol": symbol,
			"error":  err.Error(),
		})
		return nil, apperrors.NewTransient("submit test order", err)
	}

	if _, err := s.ledger.Record(ctx, userID, audit.TestOrderAction(string(exchange), true), map[string]any{
		"symbol":    result.Symbol,
		"side":      string(result.Side),
		"qty":       result.Qty,
		"mode":      result.Mode,
		"order_ref": result.OrderRef,
	}); err != nil {
		return nil, err
	}

	// A sent order counts against the daily trade limit immediately.
	if _, err := s.risk.RecordOutcome(ctx, userID, exchange, decimal.Zero); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ExecutionService) rejected(ctx context.Context, userID string, exchange model.Exchange, symbol string, cause error) error {
	appErr := apperrors.Wrap(cause)
	_, _ = s.ledger.Record(ctx, userID, audit.TestOrderAction(string(exchange), false), map[string]any{
		"symbol": symbol,
		"code":   string(appErr.Type),
		"error":  appErr.Message,
	})
	return appErr
}
