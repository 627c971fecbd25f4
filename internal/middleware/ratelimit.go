package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tradeops/riskgate/internal/config"
	"github.com/tradeops/riskgate/internal/model"
)

// RateLimitMiddleware applies a per-user token bucket. Runs after
// AuthMiddleware so limits key off the resolved identity, not the IP.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	qps := cfg.Auth.RateQPS
	burst := cfg.Auth.RateBurst
	if qps <= 0 {
		qps = 20
	}
	if burst <= 0 {
		burst = 40
	}

	return func(c *gin.Context) {
		userVal, exists := c.Get(ContextUserKey)
		if !exists {
			c.Next()
			return
		}
		user := userVal.(*model.User)

		mu.Lock()
		limiter, ok := limiters[user.ID]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(qps), burst)
			limiters[user.ID] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
