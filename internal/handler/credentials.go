package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/vault"
)

type CredentialHandler struct {
	vault *vault.CredentialVault
}

func NewCredentialHandler(v *vault.CredentialVault) *CredentialHandler {
	return &CredentialHandler{vault: v}
}

// Upsert handles PUT /v1/credentials.
func (h *CredentialHandler) Upsert(c *gin.Context) {
	var in model.CredentialUpsertIn
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWith(c, apperrors.NewValidationFailed(err.Error()))
		return
	}
	exchange, ok := model.ParseExchange(in.Exchange)
	if !ok {
		abortWith(c, apperrors.NewValidationFailed("unknown exchange "+in.Exchange))
		return
	}
	user := currentUser(c)
	if err := h.vault.Upsert(c.Request.Context(), user.ID, user.ID, exchange, in.APIKey, in.APISecret); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exchange":       string(exchange),
		"api_key_masked": vault.MaskKey(in.APIKey),
		"stored":         true,
	})
}

// List handles GET /v1/credentials: which exchanges hold a secret,
// never the secret itself.
func (h *CredentialHandler) List(c *gin.Context) {
	user := currentUser(c)
	configured, err := h.vault.Configured(c.Request.Context(), user.ID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": configured})
}

// Delete handles DELETE /v1/credentials/:exchange.
func (h *CredentialHandler) Delete(c *gin.Context) {
	exchange, ok := pathExchange(c)
	if !ok {
		return
	}
	user := currentUser(c)
	if err := h.vault.Delete(c.Request.Context(), user.ID, user.ID, exchange); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchange": string(exchange), "deleted": true})
}
