package chathub

import (
	"sort"
	"sync"
	"time"
)

type typingEntry struct {
	timer         *time.Timer
	gen           uint64
	lastBroadcast time.Time
}

// TypingTracker holds who is typing where. Every entry expires ttl after the
// last keystroke; broadcasts are throttled to one per throttle window.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	throttle time.Duration
	entries  map[string]map[string]*typingEntry
	onExpire func(conversationID, userID string)
	now      func() time.Time
	seq      uint64
	closed   bool
}

// NewTypingTracker builds a tracker. onExpire runs on its own goroutine after
// an entry lapses without a stop.
func NewTypingTracker(ttl, throttle time.Duration, onExpire func(conversationID, userID string)) *TypingTracker {
	return &TypingTracker{
		ttl:      ttl,
		throttle: throttle,
		entries:  make(map[string]map[string]*typingEntry),
		onExpire: onExpire,
		now:      time.Now,
	}
}

// Start records a keystroke and restarts the expiry timer. It reports whether
// the caller should broadcast user_typing.
func (t *TypingTracker) Start(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}

	now := t.now()
	users := t.entries[conversationID]
	if users == nil {
		users = make(map[string]*typingEntry)
		t.entries[conversationID] = users
	}

	e, ok := users[userID]
	if ok {
		e.timer.Stop()
	} else {
		e = &typingEntry{}
		users[userID] = e
	}
	t.seq++
	e.gen = t.seq
	gen := e.gen
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(conversationID, userID, gen) })

	if ok && now.Sub(e.lastBroadcast) < t.throttle {
		return false
	}
	e.lastBroadcast = now
	return true
}

// Stop removes the user from the conversation's typing set and reports
// whether they were in it.
func (t *TypingTracker) Stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(conversationID, userID, 0)
}

// RemoveUser clears userID from every typing set and returns the affected conversations.
func (t *TypingTracker) RemoveUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var convs []string
	for convID, users := range t.entries {
		if _, ok := users[userID]; ok {
			convs = append(convs, convID)
		}
	}
	for _, convID := range convs {
		t.removeLocked(convID, userID, 0)
	}
	sort.Strings(convs)
	return convs
}

// Typing lists the users currently typing in a conversation.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.entries[conversationID]))
	for id := range t.entries[conversationID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops all timers; no expiry callback fires afterwards.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, users := range t.entries {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	t.entries = make(map[string]map[string]*typingEntry)
}

func (t *TypingTracker) expire(conversationID, userID string, gen uint64) {
	t.mu.Lock()
	removed := !t.closed && t.removeLocked(conversationID, userID, gen)
	t.mu.Unlock()

	if removed && t.onExpire != nil {
		t.onExpire(conversationID, userID)
	}
}

// removeLocked deletes the entry. A non-zero gen only matches the keystroke that
// armed the timer, so a timer that lost the race with a newer keystroke is a no-op.
func (t *TypingTracker) removeLocked(conversationID, userID string, gen uint64) bool {
	users, ok := t.entries[conversationID]
	if !ok {
		return false
	}
	e, ok := users[userID]
	if !ok || (gen != 0 && e.gen != gen) {
		return false
	}
	e.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	return true
}
