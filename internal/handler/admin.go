package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/controls"
	"github.com/tradeops/riskgate/internal/guard"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/service"
)

// adminActor is the identity recorded for admin-key operations; the
// admin key is shared, not per-person.
const adminActor = "admin"

type AdminHandler struct {
	security *service.SecurityService
	controls *controls.TradingControls
	guard    *guard.SegregationGuard
}

func NewAdminHandler(security *service.SecurityService, tc *controls.TradingControls, g *guard.SegregationGuard) *AdminHandler {
	return &AdminHandler{security: security, controls: tc, guard: g}
}

// Rotate handles POST /v1/admin/security/rotate. Requires the admin
// secret header on top of the admin key.
func (h *AdminHandler) Rotate(c *gin.Context) {
	var in model.RotateIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	report, err := h.security.Rotate(c.Request.Context(), adminActor, in.OldKey, in.NewKey, in.DryRun)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Posture handles GET /v1/admin/security/posture.
func (h *AdminHandler) Posture(c *gin.Context) {
	realOnly := c.Query("real_only") == "true"
	maxAgeDays := 0
	if raw := c.Query("max_secret_age_days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			maxAgeDays = n
		}
	}
	report, err := h.security.Posture(c.Request.Context(), adminActor, realOnly, maxAgeDays)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// SetTrading handles PUT /v1/admin/controls/trading (admin secret).
func (h *AdminHandler) SetTrading(c *gin.Context) {
	var in model.TradingControlIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	if err := h.controls.Set(c.Request.Context(), in.Enabled, adminActor); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trading_enabled": in.Enabled})
}

// GetTrading handles GET /v1/admin/controls/trading.
func (h *AdminHandler) GetTrading(c *gin.Context) {
	enabled, err := h.controls.Enabled(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trading_enabled": enabled})
}

// Assign handles POST /v1/admin/strategy/assignments.
func (h *AdminHandler) Assign(c *gin.Context) {
	var in model.AssignIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	exchange, ok := model.ParseExchange(in.Exchange)
	if !ok {
		abortWith(c, apperrors.NewValidationFailed("unknown exchange "+in.Exchange))
		return
	}
	err := h.guard.Assign(c.Request.Context(), adminActor, model.StrategyAssignment{
		UserID:     in.UserID,
		Exchange:   exchange,
		StrategyID: in.StrategyID,
		Enabled:    in.Enabled,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     in.UserID,
		"exchange":    string(exchange),
		"strategy_id": in.StrategyID,
		"enabled":     in.Enabled,
	})
}

// ListAssignments handles GET /v1/admin/strategy/assignments.
func (h *AdminHandler) ListAssignments(c *gin.Context) {
	assignments, err := h.guard.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments, "count": len(assignments)})
}
