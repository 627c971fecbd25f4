package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/policy"
)

type CheckHandler struct {
	engine *policy.Engine
}

func NewCheckHandler(engine *policy.Engine) *CheckHandler {
	return &CheckHandler{engine: engine}
}

// Pretrade handles POST /v1/execution/pretrade/:exchange/check.
func (h *CheckHandler) Pretrade(c *gin.Context) {
	exchange, ok := pathExchange(c)
	if !ok {
		return
	}
	var in model.PretradeCheckIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	side, _ := model.ParseSide(in.Side)
	user := currentUser(c)

	decision, err := h.engine.CheckPretrade(c.Request.Context(), model.PretradeRequest{
		UserID:     user.ID,
		Exchange:   exchange,
		Symbol:     in.Symbol,
		Side:       side,
		Qty:        in.Qty,
		RREstimate: in.RREstimate,
		TrendTF:    in.TrendTF,
		SignalTF:   in.SignalTF,
		TimingTF:   in.TimingTF,
		Market:     in.MarketContext,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// Exit handles POST /v1/execution/exit/:exchange/check.
func (h *CheckHandler) Exit(c *gin.Context) {
	exchange, ok := pathExchange(c)
	if !ok {
		return
	}
	var in model.ExitCheckIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	side, _ := model.ParseSide(in.Side)
	user := currentUser(c)

	decision, err := h.engine.CheckExit(c.Request.Context(), model.ExitRequest{
		UserID:        user.ID,
		Exchange:      exchange,
		Symbol:        in.Symbol,
		Side:          side,
		EntryPrice:    in.EntryPrice,
		CurrentPrice:  in.CurrentPrice,
		StopLoss:      in.StopLoss,
		TakeProfit:    in.TakeProfit,
		OpenedMinutes: in.OpenedMinutes,
		TrendBreak:    in.TrendBreak,
		SignalReverse: in.SignalReverse,
		Market:        in.MarketContext,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
