package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collab-service/internal/models"
)

// RateLimiter is backed by the Redis sliding window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// RateLimitIP limits requests per client address and path.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.check(c, fmt.Sprintf("ip:%s:%s", c.ClientIP(), c.FullPath()), requests, window)
	}
}

func (rm *RateLimitMiddleware) check(c *gin.Context, key string, requests int, window time.Duration) {
	if requests <= 0 {
		c.Next()
		return
	}

	allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
	if err != nil {
		slog.Warn("Rate limit check failed", "key", key, "error", err)
		c.Next()
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Code:    http.StatusTooManyRequests,
			Message: "rate limit exceeded",
			Details: fmt.Sprintf("too many requests, limit %d per %v", requests, window),
		})
		return
	}
	c.Next()
}
