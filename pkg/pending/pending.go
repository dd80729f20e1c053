// Package pending tracks optimistic sends on the client side of the realtime
// protocol until the server confirms or rejects them. It is meant for Go
// clients of the websocket protocol; the server never imports it.
package pending

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"socialdm/backend/internal/models"
)

type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrExpired is the failure recorded for sends with no answer within the grace period.
var ErrExpired = errors.New("no confirmation from server")

// ErrDuplicateTempID is returned by Add for a tempId already in the table.
var ErrDuplicateTempID = errors.New("tempId already pending")

type Op struct {
	TempID         string
	ConversationID string
	Content        string
	SentAt         time.Time
	Status         Status
	// MessageID is set once confirmed.
	MessageID string
	Error     string
}

// Table is safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	grace time.Duration
	ops   map[string]*Op
}

func New(grace time.Duration) *Table {
	return &Table{grace: grace, ops: make(map[string]*Op)}
}

// Add records an optimistic send.
func (t *Table) Add(tempID, conversationID, content string, now time.Time) (Op, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ops[tempID]; ok {
		return Op{}, ErrDuplicateTempID
	}
	op := &Op{TempID: tempID, ConversationID: conversationID, Content: content, SentAt: now, Status: StatusPending}
	t.ops[tempID] = op
	return *op, nil
}

// Apply advances the op named by evt's tempId. new_message confirms; message_error
// fails. A confirmation also rescues an op that already expired, since the server
// did store it. It reports the op and whether anything changed.
func (t *Table) Apply(evt models.ServerEvent) (Op, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch p := evt.Data.(type) {
	case models.NewMessagePayload:
		op, ok := t.ops[p.TempID]
		if !ok || p.TempID == "" || op.Status == StatusConfirmed {
			return Op{}, false
		}
		op.Status = StatusConfirmed
		op.MessageID = p.ID
		op.Error = ""
		return *op, true
	case models.MessageErrorPayload:
		op, ok := t.ops[p.TempID]
		if !ok || p.TempID == "" || op.Status != StatusPending {
			return Op{}, false
		}
		op.Status = StatusFailed
		op.Error = p.Error
		return *op, true
	default:
		return Op{}, false
	}
}

// ApplyRaw decodes a frame as received over the wire and applies it.
// Frames that do not concern pending sends are ignored.
func (t *Table) ApplyRaw(raw []byte) (Op, bool, error) {
	var env struct {
		Type models.EventType `json:"type"`
		Data json.RawMessage  `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Op{}, false, err
	}

	var evt models.ServerEvent
	switch env.Type {
	case models.EventNewMessage:
		var p models.NewMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Op{}, false, err
		}
		evt = models.ServerEvent{Type: env.Type, Data: p}
	case models.EventMessageError:
		var p models.MessageErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Op{}, false, err
		}
		evt = models.ServerEvent{Type: env.Type, Data: p}
	default:
		return Op{}, false, nil
	}
	op, changed := t.Apply(evt)
	return op, changed, nil
}

// Expire fails every pending op sent more than the grace period before now
// and returns them so the caller can roll back its optimistic state.
func (t *Table) Expire(now time.Time) []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Op
	for _, op := range t.ops {
		if op.Status == StatusPending && now.Sub(op.SentAt) >= t.grace {
			op.Status = StatusFailed
			op.Error = ErrExpired.Error()
			out = append(out, *op)
		}
	}
	sortOps(out)
	return out
}

func (t *Table) Get(tempID string) (Op, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tempID]
	if !ok {
		return Op{}, false
	}
	return *op, true
}

// Pending lists unanswered ops, oldest first. A reconnecting client resends these.
func (t *Table) Pending() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Op
	for _, op := range t.ops {
		if op.Status == StatusPending {
			out = append(out, *op)
		}
	}
	sortOps(out)
	return out
}

// Remove forgets an op once the UI no longer needs it.
func (t *Table) Remove(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ops, tempID)
}

func sortOps(ops []Op) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].SentAt.Equal(ops[j].SentAt) {
			return ops[i].TempID < ops[j].TempID
		}
		return ops[i].SentAt.Before(ops[j].SentAt)
	})
}
