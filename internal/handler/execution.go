package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/risk"
	"github.com/tradeops/riskgate/internal/service"
)

type ExecutionHandler struct {
	execution *service.ExecutionService
	risk      *risk.Aggregator
}

func NewExecutionHandler(execution *service.ExecutionService, risk *risk.Aggregator) *ExecutionHandler {
	return &ExecutionHandler{execution: execution, risk: risk}
}

// Prepare handles POST /v1/execution/prepare.
func (h *ExecutionHandler) Prepare(c *gin.Context) {
	var in model.PrepareIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	exchange, ok := model.ParseExchange(in.Exchange)
	if !ok {
		abortWith(c, apperrors.NewValidationFailed("unknown exchange "+in.Exchange))
		return
	}
	side, _ := model.ParseSide(in.Side)
	user := currentUser(c)

	out, err := h.execution.Prepare(c.Request.Context(), user.ID, exchange, in.Symbol, side, in.Qty)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// TestOrder handles POST /v1/execution/:exchange/test-order. Runs
// behind the idempotency middleware.
func (h *ExecutionHandler) TestOrder(c *gin.Context) {
	exchange, ok := pathExchange(c)
	if !ok {
		return
	}
	var in model.TestOrderIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	side, _ := model.ParseSide(in.Side)
	user := currentUser(c)

	result, err := h.execution.TestOrder(c.Request.Context(), user.ID, exchange, in.Symbol, side, in.Qty)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RiskSnapshot handles GET /v1/risk/:exchange.
func (h *ExecutionHandler) RiskSnapshot(c *gin.Context) {
	exchange, ok := pathExchange(c)
	if !ok {
		return
	}
	user := currentUser(c)
	state, err := h.risk.Snapshot(c.Request.Context(), user.ID, exchange)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// RecordOutcome handles POST /v1/risk/:exchange/outcome: books one
// completed trade's realized PnL against today's counters.
func (h *ExecutionHandler) RecordOutcome(c *gin.Context) {
	exchange, ok := pathExchange(c)
	if !ok {
		return
	}
	var in model.OutcomeIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	user := currentUser(c)
	state, err := h.risk.RecordOutcome(c.Request.Context(), user.ID, exchange, decimal.NewFromFloat(in.PnL))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
