package handler

import (
	"net/http"

	"socialdm/backend/internal/api/middleware"
	"socialdm/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

type createConversationRequest struct {
	ParticipantID string `json:"participantId"`
}

// ListConversations returns the caller's accepted conversations, most recent first.
func (h *Handler) ListConversations(c *gin.Context) {
	views, err := h.Conversations.ListAccepted(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// ListMessageRequests returns pending requests addressed to the caller.
func (h *Handler) ListMessageRequests(c *gin.Context) {
	views, err := h.Conversations.ListRequests(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// CreateConversation is get-or-create for the pair (caller, participantId).
func (h *Handler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.Validation("invalid request body"))
		return
	}

	me := middleware.UserID(c)
	conv, err := h.Conversations.GetOrCreate(c.Request.Context(), me, req.ParticipantID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	view, err := h.Conversations.View(c.Request.Context(), conv, me)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) AcceptRequest(c *gin.Context) {
	me := middleware.UserID(c)
	conv, err := h.Conversations.Accept(c.Request.Context(), c.Param("id"), me)
	if err != nil {
		_ = c.Error(err)
		return
	}
	view, err := h.Conversations.View(c.Request.Context(), conv, me)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}
