package chathub

import "socialdm/backend/internal/models"

// Client is one live realtime connection. The hub only talks to connections
// through this interface, so tests can drive it with fakes.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string
	// ConnID identifies this connection; a reconnecting user gets a new one.
	ConnID() string

	// Deliver queues evt for the write side. It returns false once the client is
	// closed or when its buffer is full; it never blocks and never panics.
	Deliver(evt models.ServerEvent) bool

	// Transition moves the connection state machine forward.
	Transition(to ConnState) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close gracefully shuts down the connection. Safe to call more than once.
	Close()
}
