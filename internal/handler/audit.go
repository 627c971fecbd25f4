package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/model"
)

type AuditHandler struct {
	ledger *audit.Ledger
}

func NewAuditHandler(ledger *audit.Ledger) *AuditHandler {
	return &AuditHandler{ledger: ledger}
}

// Mine handles GET /v1/audit/me: the caller's own trail.
func (h *AuditHandler) Mine(c *gin.Context) {
	user := currentUser(c)
	records, err := h.ledger.Export(c.Request.Context(), model.AuditFilter{
		Actor:        user.ID,
		ActionPrefix: c.Query("action_prefix"),
		Limit:        queryLimit(c, 100),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// Export handles GET /v1/admin/audit/export: the full trail, with
// per-record verification status so a tampered store is visible.
func (h *AuditHandler) Export(c *gin.Context) {
	records, err := h.ledger.Export(c.Request.Context(), model.AuditFilter{
		Actor:        c.Query("actor"),
		ActionPrefix: c.Query("action_prefix"),
		Limit:        queryLimit(c, 1000),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	verified := true
	for _, rec := range records {
		if !h.ledger.Verify(rec) {
			verified = false
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"records":  records,
		"count":    len(records),
		"verified": verified,
	})
}

func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
