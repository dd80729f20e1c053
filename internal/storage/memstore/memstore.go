// Package memstore is an in-process storage.Storage used for development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"

	"github.com/lib/pq"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	conversations map[string]*models.Conversation
	pairs         map[string]string
	messages      map[string]*models.Message
	byConv        map[string][]string
	clientIDs     map[string]string
}

var _ storage.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string]*models.Message),
		byConv:        make(map[string][]string),
		clientIDs:     make(map[string]string),
	}
}

func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUsers(_ context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (s *Store) UpsertUser(_ context.Context, user *models.User) error {
	if user.ID == "" {
		_ = user.BeforeCreate(nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) SetUserPresence(_ context.Context, id string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.IsOnline = online
	u.LastActive = at
	return nil
}

func (s *Store) FindConversationByPair(_ context.Context, a, b string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[models.PairKey(a, b)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

func (s *Store) CreateConversation(_ context.Context, conv *models.Conversation) error {
	_ = conv.BeforeCreate(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pairs[conv.PairKey]; ok {
		return storage.ErrDuplicate
	}
	if _, ok := s.conversations[conv.ID]; ok {
		return storage.ErrDuplicate
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	s.pairs[conv.PairKey] = conv.ID
	return nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneConversation(c), nil
}

func (s *Store) ListConversations(_ context.Context, userID string, filter storage.ConversationFilter) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0)
	for _, c := range s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		switch filter {
		case storage.FilterIncomingRequests:
			if !c.IsPendingRequest() || c.RequestFrom == userID {
				continue
			}
		default:
			if c.IsMessageRequest {
				continue
			}
		}
		out = append(out, *cloneConversation(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *Store) AcceptConversationRequest(_ context.Context, id, accepterID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || !c.HasParticipant(accepterID) || !c.IsPendingRequest() || c.RequestFrom == accepterID {
		return nil, storage.ErrNotFound
	}
	c.IsMessageRequest = false
	c.RequestAccepted = true
	return cloneConversation(c), nil
}

func (s *Store) TouchConversation(_ context.Context, id, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || at.Before(c.LastActivity) {
		return nil
	}
	mid := messageID
	c.LastMessageID = &mid
	c.LastActivity = at
	return nil
}

func (s *Store) CreateMessage(_ context.Context, msg *models.Message) error {
	msg.Prepare()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return storage.ErrDuplicate
	}
	if msg.ClientMessageID != nil {
		key := clientKey(msg.SenderID, msg.ConversationID, *msg.ClientMessageID)
		if _, ok := s.clientIDs[key]; ok {
			return storage.ErrDuplicate
		}
		s.clientIDs[key] = msg.ID
	}
	s.messages[msg.ID] = cloneMessage(msg)
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg.ID)
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *Store) GetMessages(_ context.Context, ids []string) (map[string]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Message, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out[id] = cloneMessage(m)
		}
	}
	return out, nil
}

func (s *Store) FindMessageByClientID(_ context.Context, senderID, conversationID, clientMessageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.clientIDs[clientKey(senderID, conversationID, clientMessageID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneMessage(s.messages[id]), nil
}

func (s *Store) ListMessages(_ context.Context, conversationID, viewerID string, skip, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := make([]*models.Message, 0, len(s.byConv[conversationID]))
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.IsDeletedFor(viewerID) {
			continue
		}
		visible = append(visible, m)
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].CreatedAt.Equal(visible[j].CreatedAt) {
			return visible[i].ID > visible[j].ID
		}
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})

	if skip >= len(visible) {
		return []models.Message{}, nil
	}
	end := len(visible)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	out := make([]models.Message, 0, end-skip)
	for _, m := range visible[skip:end] {
		out = append(out, *cloneMessage(m))
	}
	return out, nil
}

// MarkConversationRead appends under the write lock, so concurrent readers
// never lose each other's receipts.
func (s *Store) MarkConversationRead(_ context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.SenderID == readerID || m.IsReadBy(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, models.ReadReceipt{MessageID: m.ID, UserID: readerID, ReadAt: at})
		n++
	}
	return n, nil
}

func (s *Store) MarkMessageDeleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.IsDeleted = true
	return nil
}

func (s *Store) AddMessageDeletedFor(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !m.IsDeletedFor(userID) {
		m.DeletedFor = append(m.DeletedFor, userID)
	}
	return nil
}

func clientKey(senderID, conversationID, clientMessageID string) string {
	return senderID + "\x00" + conversationID + "\x00" + clientMessageID
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Followers = append(pq.StringArray(nil), u.Followers...)
	c.Following = append(pq.StringArray(nil), u.Following...)
	return &c
}

func cloneConversation(conv *models.Conversation) *models.Conversation {
	c := *conv
	c.Participants = append(pq.StringArray(nil), conv.Participants...)
	if conv.LastMessageID != nil {
		id := *conv.LastMessageID
		c.LastMessageID = &id
	}
	return &c
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.ReadBy = append([]models.ReadReceipt{}, m.ReadBy...)
	c.DeletedFor = append(pq.StringArray{}, m.DeletedFor...)
	if m.ClientMessageID != nil {
		id := *m.ClientMessageID
		c.ClientMessageID = &id
	}
	return &c
}
