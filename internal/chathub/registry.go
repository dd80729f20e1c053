package chathub

import (
	"sync"
	"time"

	"socialdm/backend/internal/models"
)

type registryEntry struct {
	client   Client
	snapshot *models.User
	lastSeen time.Time
}

// Registry maps users to their live connection and conversations to the
// connections subscribed to them. It is owned by the ManagerService.
type Registry struct {
	mu sync.RWMutex

	users map[string]*registryEntry
	// conversation id -> subscribed connections, and the reverse index
	convClients map[string]map[Client]struct{}
	clientConvs map[Client]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		users:       make(map[string]*registryEntry),
		convClients: make(map[string]map[Client]struct{}),
		clientConvs: make(map[Client]map[string]struct{}),
	}
}

// Register makes c the connection for its user. The last registered connection
// wins; the one it replaced, if any, is returned so the caller can close it.
func (r *Registry) Register(c Client, snapshot *models.User, at time.Time) Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := c.GetUserID()
	var replaced Client
	if prev, ok := r.users[userID]; ok && prev.client != c {
		replaced = prev.client
	}
	r.users[userID] = &registryEntry{client: c, snapshot: snapshot, lastSeen: at}
	return replaced
}

// Unregister removes the user's entry only if it still belongs to c, and returns
// the cached snapshot. A replaced connection going away leaves the new one alone.
func (r *Registry) Unregister(c Client) (*models.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[c.GetUserID()]
	if !ok || e.client != c {
		return nil, false
	}
	delete(r.users, c.GetUserID())
	return e.snapshot, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// ClientOf returns the user's private channel.
func (r *Registry) ClientOf(userID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.users[userID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

func (r *Registry) Snapshot(userID string) (*models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.users[userID]
	if !ok {
		return nil, false
	}
	return e.snapshot, true
}

func (r *Registry) Touch(userID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[userID]; ok {
		e.lastSeen = at
	}
}

func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.users[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// OnlineAmong filters ids down to users with a live connection, keeping order.
func (r *Registry) OnlineAmong(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.users[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.users))
	for _, e := range r.users {
		out = append(out, e.client)
	}
	return out
}

// Subscribe adds c to the conversation channel. DropClient undoes every
// subscription of c at teardown.
func (r *Registry) Subscribe(conversationID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.convClients[conversationID] == nil {
		r.convClients[conversationID] = make(map[Client]struct{})
	}
	r.convClients[conversationID][c] = struct{}{}
	if r.clientConvs[c] == nil {
		r.clientConvs[c] = make(map[string]struct{})
	}
	r.clientConvs[c][conversationID] = struct{}{}
}

func (r *Registry) Unsubscribe(conversationID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(conversationID, c)
}

func (r *Registry) unsubscribeLocked(conversationID string, c Client) {
	if subs, ok := r.convClients[conversationID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(r.convClients, conversationID)
		}
	}
	if convs, ok := r.clientConvs[c]; ok {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(r.clientConvs, c)
		}
	}
}

func (r *Registry) IsSubscribed(conversationID string, c Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.convClients[conversationID][c]
	return ok
}

// Subscribers returns a snapshot of the connections on a conversation channel.
func (r *Registry) Subscribers(conversationID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.convClients[conversationID]
	out := make([]Client, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// DropClient removes every conversation subscription held by c and returns
// the conversation ids it was subscribed to.
func (r *Registry) DropClient(c Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	convs := make([]string, 0, len(r.clientConvs[c]))
	for id := range r.clientConvs[c] {
		convs = append(convs, id)
	}
	for _, id := range convs {
		r.unsubscribeLocked(id, c)
	}
	return convs
}
