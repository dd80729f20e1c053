package handler

import (
	"net/http"

	"socialdm/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// OnlineUsers lists the caller's online followers and followees.
func (h *Handler) OnlineUsers(c *gin.Context) {
	users, err := h.Hub.OnlineContacts(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, users)
}
