package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docinsight/internal/transport/http/response"
)

type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// RateLimit throttles per authenticated user, falling back to the client IP.
// Limiter errors let the request through.
func RateLimit(limiter Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if userID, ok := c.Get(ContextUserIDKey); ok {
			subject = fmt.Sprintf("user:%v", userID)
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), subject)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", seconds))
			response.Error(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "too many submissions, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
