package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tradeops/riskgate/internal/model"
)

// OrderSubmitter is the outbound exchange collaborator. The engine
// gates and audits; actual connectivity lives behind this interface.
type OrderSubmitter interface {
	Submit(ctx context.Context, cred *model.DecryptedCredential, symbol string, side model.Side, qty float64) (*model.SubmitResult, error)
}

// PaperSubmitter simulates submission without touching an exchange.
// It is the default in paper mode and the stand-in for tests.
type PaperSubmitter struct{}

func NewPaperSubmitter() *PaperSubmitter {
	return &PaperSubmitter{}
}

func (s *PaperSubmitter) Submit(_ context.Context, cred *model.DecryptedCredential, symbol string, side model.Side, qty float64) (*model.SubmitResult, error) {
	return &model.SubmitResult{
		Exchange: cred.Exchange,
		Mode:     "paper",
		Symbol:   strings.ToUpper(symbol),
		Side:     side,
		Qty:      qty,
		Sent:     true,
		OrderRef: "paper-" + uuid.NewString(),
	}, nil
}
