package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"socialdm/backend/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type devTokenRequest struct {
	UserID string `json:"userId"`
}

// IssueDevToken видає JWT для локальної розробки. Without a userId a random
// identity is minted, like an anonymous session.
func (h *Handler) IssueDevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(apperr.Validation("invalid request body"))
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = uuid.NewString()
	}

	token, err := h.Tokens.GenerateToken(userID)
	if err != nil {
		_ = c.Error(apperr.Transient(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": userID})
}
