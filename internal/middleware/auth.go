package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/config"
)

const (
	HeaderAPIKey   = "X-API-Key"
	ContextUserKey = "user"
)

// AuthMiddleware resolves the caller identity from the configured user
// roster. Unknown keys never fall through to a default identity.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		user, ok := cfg.UserByAPIKey(apiKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}
