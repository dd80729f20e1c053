package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"socialdm/backend/internal/api/middleware"
	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/chat"
	"socialdm/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	ConversationID  string `json:"conversationId"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId"`
}

type deleteMessageRequest struct {
	DeleteFor string `json:"deleteFor"`
}

type readResponse struct {
	ConversationID string    `json:"conversationId"`
	Count          int64     `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

// queryInt parses an optional positive integer query parameter.
func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a positive integer")
	}
	return n, nil
}

// ListMessages returns one page of history: page 1 is the newest, each page oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		_ = c.Error(err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		_ = c.Error(err)
		return
	}

	views, err := h.Messages.List(c.Request.Context(), c.Param("id"), middleware.UserID(c), page, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// SendMessage persists a message and fans it out like a realtime send.
// A replayed clientMessageId answers 200 with the original message.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperr.Validation("invalid request body"))
		return
	}
	if req.ConversationID == "" {
		_ = c.Error(apperr.Validation("conversationId is required"))
		return
	}

	me := middleware.UserID(c)
	res, err := h.Hub.SendMessage(c.Request.Context(), nil, chat.SendInput{
		ConversationID:  req.ConversationID,
		SenderID:        me,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, models.NewMessageView(res.Message, res.Conversation.OtherParticipant(me)))
}

func (h *Handler) MarkRead(c *gin.Context) {
	res, err := h.Hub.MarkRead(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, readResponse{
		ConversationID: res.Conversation.ID,
		Count:          res.Count,
		ReadAt:         res.ReadAt,
	})
}

// DeleteMessage soft-deletes for the caller ("me") or for everyone (sender only).
func (h *Handler) DeleteMessage(c *gin.Context) {
	var req deleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(apperr.Validation("invalid request body"))
		return
	}
	if req.DeleteFor == "" {
		req.DeleteFor = c.Query("deleteFor")
	}

	me := middleware.UserID(c)
	res, err := h.Messages.SoftDelete(c.Request.Context(), c.Param("id"), me, req.DeleteFor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleteFor": res.Scope,
		"message":   models.NewMessageView(res.Message, res.Conversation.OtherParticipant(me)),
	})
}
