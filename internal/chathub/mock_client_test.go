package chathub_test

import (
	"sync"
	"testing"
	"time"

	"socialdm/backend/internal/chathub"
	"socialdm/backend/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient records delivered events. Close and Run are tracked with mock.Mock.
type MockClient struct {
	mock.Mock

	userID string
	connID string

	mu     sync.Mutex
	events []models.ServerEvent
	closed bool
	state  chathub.ConnState
}

func newMockClient(userID string) *MockClient {
	c := &MockClient{userID: userID, connID: userID + "-conn", state: chathub.StateAuthenticated}
	c.On("Close").Return().Maybe()
	return c
}

func (c *MockClient) GetUserID() string { return c.userID }
func (c *MockClient) ConnID() string    { return c.connID }

func (c *MockClient) Deliver(evt models.ServerEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *MockClient) Transition(to chathub.ConnState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !chathub.CanTransition(c.state, to) {
		return false
	}
	c.state = to
	return true
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.Called()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *MockClient) State() chathub.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) Events() []models.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ServerEvent(nil), c.events...)
}

func (c *MockClient) EventsOf(t models.EventType) []models.ServerEvent {
	var out []models.ServerEvent
	for _, e := range c.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// waitFor polls until the client has received an event of type t.
func waitFor(t *testing.T, c *MockClient, typ models.EventType, within time.Duration) models.ServerEvent {
	t.Helper()
	var got models.ServerEvent
	require.Eventually(t, func() bool {
		evts := c.EventsOf(typ)
		if len(evts) == 0 {
			return false
		}
		got = evts[0]
		return true
	}, within, 10*time.Millisecond, "expected %s for %s", typ, c.userID)
	return got
}
