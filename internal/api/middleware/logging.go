package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LogApi logs one line per request. Server errors are logged at Error.
func LogApi(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"clientIP", c.ClientIP(),
			"latency", time.Since(start),
			"userAgent", c.Request.UserAgent(),
		}
		if userID, ok := c.Get("user_id"); ok {
			attrs = append(attrs, "userID", userID)
		}
		if errs := c.Errors.String(); errs != "" {
			attrs = append(attrs, "error", errs)
		}
		logger.Log(c.Request.Context(), level, "HTTP request", attrs...)
	}
}
