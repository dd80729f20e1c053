// Package api wires the HTTP surface: middleware, routes and the websocket upgrade.
package api

import (
	"socialdm/backend/internal/api/handler"
	"socialdm/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AllowedOrigins []string
	// RateLimiter is applied per client IP to every authenticated route. Nil disables it.
	RateLimiter *middleware.IPRateLimiter
}

func NewRouter(h *handler.Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.ErrorHandler(), middleware.CORS(cfg.AllowedOrigins))

	r.GET("/health", h.Health)
	// the upgrade authenticates on its own so browsers can pass ?token=
	r.GET("/ws", h.ServeWebSocket)
	if h.Tokens != nil && h.DevTokensEnabled() {
		r.POST("/dev/token", h.IssueDevToken)
	}

	authed := r.Group("/")
	if cfg.RateLimiter != nil {
		authed.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	authed.Use(middleware.Auth(h.Verifier))
	{
		authed.GET("/conversations", h.ListConversations)
		authed.GET("/message-requests", h.ListMessageRequests)
		authed.POST("/conversation", h.CreateConversation)
		authed.GET("/conversation/:id/messages", h.ListMessages)
		authed.PUT("/conversation/:id/read", h.MarkRead)
		authed.PUT("/accept-request/:id", h.AcceptRequest)
		authed.POST("/message", h.SendMessage)
		authed.DELETE("/message/:id", h.DeleteMessage)
		authed.GET("/online-users", h.OnlineUsers)
	}
	return r
}
