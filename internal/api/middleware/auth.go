package middleware

import (
	"strings"

	"socialdm/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userId"

// BearerToken extracts the credential from "Authorization: Bearer <token>",
// falling back to the token query parameter used by browser websocket clients.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// Auth verifies the bearer credential and stores the user id in the context.
func Auth(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := v.Verify(BearerToken(c))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the id set by Auth.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
