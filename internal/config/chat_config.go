package config

import "time"

const (
	// Messages
	MaxMessageLength = 2000
	DefaultPageSize  = 30
	MaxPageSize      = 100

	// Typing indicators
	DefaultTypingTTL      = 3 * time.Second
	DefaultTypingThrottle = 1 * time.Second

	// Realtime connections
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWSEventsPerSec   = 20
	DefaultWSEventsBurst    = 40
	ClientSendBuffer        = 256

	// Send idempotency
	DefaultIdempotencyTTL = 24 * time.Hour
)

// Delete scopes accepted by DELETE /message/:id.
const (
	DeleteForMe       = "me"
	DeleteForEveryone = "everyone"
)
