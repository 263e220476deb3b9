package middleware

import (
	"context"
	"net/http"

	"bankid-service/internal/logger"

	"github.com/gin-gonic/gin"
)

// Limiter is the surface the middleware needs from a rate limiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit caps requests per client IP. When enabled is false the
// middleware passes everything through, which keeps local testing easy.
// Limiter backend failures fail open.
func RateLimit(limiter Limiter, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || limiter == nil {
			c.Next()
			return
		}

		ok, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Error("rate limiter unavailable", map[string]any{
				"error": err.Error(),
			})
			c.Next()
			return
		}

		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}

		c.Next()
	}
}
