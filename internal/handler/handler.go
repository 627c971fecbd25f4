// Package handler is the thin transport layer over the engine
// services. Handlers bind and validate input, call one service method
// and hand errors to the error middleware.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/middleware"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
)

// currentUser returns the identity AuthMiddleware resolved.
func currentUser(c *gin.Context) *model.User {
	userVal, _ := c.Get(middleware.ContextUserKey)
	return userVal.(*model.User)
}

// pathExchange parses the :exchange route segment.
func pathExchange(c *gin.Context) (model.Exchange, bool) {
	exchange, ok := model.ParseExchange(c.Param("exchange"))
	if !ok {
		abortWith(c, apperrors.NewValidationFailed("unknown exchange "+c.Param("exchange")))
		return "", false
	}
	return exchange, true
}

func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
