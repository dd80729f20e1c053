package handler

import (
	"context"

	"socialdm/backend/internal/api/middleware"
	"socialdm/backend/internal/chathub"
	"socialdm/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket authenticates the handshake and upgrades to a realtime
// connection. A bad credential is refused with 401 before the upgrade.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, err := h.Verifier.Verify(middleware.BearerToken(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(userID, conn, h.Hub, h.eventLimiter())
	// the request context ends with the hijacked handler, so registration gets its own
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.HandshakeTimeout)
	defer cancel()
	if err := h.Hub.Register(ctx, client); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to register client")
		client.Transition(chathub.StateDisconnected)
		_ = conn.Close()
		return
	}

	client.Run()
}
