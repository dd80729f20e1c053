package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached with c.Error as
// {"error", "kind"} and turns panics into a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
					"kind":  apperr.KindTransient,
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		ae := apperr.As(c.Errors.Last().Err)
		switch ae.Kind {
		case apperr.KindTransient:
			logger.Error().Err(ae).Str("path", c.Request.URL.Path).Msg("request failed")
		case apperr.KindAccessDenied:
			logger.Warn().Str("path", c.Request.URL.Path).Str("user_id", c.GetString(UserIDKey)).Msg("access denied")
		}
		c.JSON(ae.HTTPStatus(), gin.H{"error": ae.Message, "kind": ae.Kind})
	}
}
