package handler

import (
	"net/http"
	"strings"
	"time"

	"socialdm/backend/internal/auth"
	"socialdm/backend/internal/chat"
	"socialdm/backend/internal/chathub"
	"socialdm/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Options configures the transport side of the handlers.
type Options struct {
	HandshakeTimeout time.Duration
	AllowedOrigins   []string
	WSEventsPerSec   float64
	WSEventsBurst    int
	// DevTokens enables POST /dev/token. Never set in production.
	DevTokens bool
}

// Handler містить посилання на ChatHub та сервіси домену
type Handler struct {
	Hub           *chathub.ManagerService
	Conversations *chat.ConversationService
	Messages      *chat.MessageService
	Verifier      auth.Verifier
	Tokens        *auth.Authenticator

	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(hub *chathub.ManagerService, verifier auth.Verifier, tokens *auth.Authenticator, opts Options) *Handler {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if opts.WSEventsPerSec <= 0 {
		opts.WSEventsPerSec = config.DefaultWSEventsPerSec
	}
	if opts.WSEventsBurst <= 0 {
		opts.WSEventsBurst = config.DefaultWSEventsBurst
	}
	h := &Handler{
		Hub:           hub,
		Conversations: hub.Conversations,
		Messages:      hub.Messages,
		Verifier:      verifier,
		Tokens:        tokens,
		opts:          opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// checkOrigin accepts non-browser clients (no Origin header) and the configured
// frontend origins. With no origins configured every origin is accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (h *Handler) eventLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(h.opts.WSEventsPerSec), h.opts.WSEventsBurst)
}

// Health is the unauthenticated liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) DevTokensEnabled() bool {
	return h.opts.DevTokens
}
