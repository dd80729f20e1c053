package middleware

import (
	"time"

	"socialdm/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Logging logs every request with its timing.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= 400 {
			event = logger.Warn()
		}
		if status >= 500 {
			event = logger.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("user_id", c.GetString(UserIDKey)).
			Int("body_size", c.Writer.Size()).
			Msg("request")
	}
}
