package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/config"
	"socialdm/backend/internal/models"
	"socialdm/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	eventTimeout   = 10 * time.Second
)

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	id      string
	userID  string
	conn    *websocket.Conn
	hub     *ManagerService
	limiter *rate.Limiter
	state   connState

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// NewWebSocketClient wraps an upgraded connection for an authenticated user.
// limiter bounds inbound events; nil disables the limit.
func NewWebSocketClient(userID string, conn *websocket.Conn, hub *ManagerService, limiter *rate.Limiter) *WebSocketClient {
	c := &WebSocketClient{
		id:      uuid.New().String(),
		userID:  userID,
		conn:    conn,
		hub:     hub,
		limiter: limiter,
		send:    make(chan []byte, config.ClientSendBuffer),
	}
	c.state.Transition(StateAuthenticated)
	return c
}

func (c *WebSocketClient) GetUserID() string { return c.userID }
func (c *WebSocketClient) ConnID() string    { return c.id }
func (c *WebSocketClient) State() ConnState  { return c.state.Load() }

func (c *WebSocketClient) Transition(to ConnState) bool {
	return c.state.Transition(to)
}

func (c *WebSocketClient) Deliver(evt models.ServerEvent) bool {
	b, err := json.Marshal(evt)
	if err != nil {
		logger.Error().Err(err).Str("event", string(evt.Type)).Msg("failed to encode event")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		logger.Warn().Str("user_id", c.userID).Str("event", string(evt.Type)).Msg("send buffer full, dropping event")
		return false
	}
}

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state.Transition(StateDisconnected)
	close(c.send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("user_id", c.userID).Msg("websocket read failed")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.Deliver(models.ErrorEvent("", "", apperr.RateLimited("too many events, slow down")))
			continue
		}

		evt, err := models.ParseClientEvent(raw)
		if err != nil {
			c.Deliver(models.ErrorEvent("", "", err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		c.hub.Dispatch(ctx, c, evt)
		cancel()
	}
}

// writePump читає повідомлення з каналу send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
