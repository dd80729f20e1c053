package chathub

import (
	"context"
	"errors"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/chat"
	"socialdm/backend/internal/config"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"
	"socialdm/backend/pkg/logger"
)

// Options tunes the hub. Zero values fall back to the package defaults.
type Options struct {
	TypingTTL      time.Duration
	TypingThrottle time.Duration
}

// ManagerService is the realtime fan-out engine. It is the only owner of the
// Registry and the TypingTracker.
type ManagerService struct {
	Registry      *Registry
	Typing        *TypingTracker
	Conversations *chat.ConversationService
	Messages      *chat.MessageService
	Storage       storage.Storage

	UnregisterCh chan Client

	convLocks *keyedMutex
	done      chan struct{}
	now       func() time.Time
}

func NewManagerService(s storage.Storage, convs *chat.ConversationService, msgs *chat.MessageService, opts Options) *ManagerService {
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = config.DefaultTypingTTL
	}
	if opts.TypingThrottle <= 0 {
		opts.TypingThrottle = config.DefaultTypingThrottle
	}
	m := &ManagerService{
		Registry:      NewRegistry(),
		Conversations: convs,
		Messages:      msgs,
		Storage:       s,
		UnregisterCh:  make(chan Client, 64),
		convLocks:     newKeyedMutex(),
		done:          make(chan struct{}),
		now:           time.Now,
	}
	m.Typing = NewTypingTracker(opts.TypingTTL, opts.TypingThrottle, m.typingExpired)
	return m
}

// Run drains disconnects until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) {
	logger.Info().Msg("realtime hub started")
	for {
		select {
		case c := <-m.UnregisterCh:
			m.disconnect(c)
		case <-ctx.Done():
			m.shutdown()
			return
		}
	}
}

func (m *ManagerService) shutdown() {
	close(m.done)
	m.Typing.Close()
	clients := m.Registry.Clients()
	for _, c := range clients {
		c.Close()
	}
	logger.Info().Int("clients", len(clients)).Msg("realtime hub stopped")
}

// Unregister hands c to the Run loop, or disconnects it inline once the hub is stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case <-m.done:
		m.disconnect(c)
		return
	default:
	}
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
		m.disconnect(c)
	}
}

// Register activates an authenticated connection: it becomes the user's private
// channel, the user is marked online and their contacts are told.
func (m *ManagerService) Register(ctx context.Context, c Client) error {
	userID := c.GetUserID()
	if !c.Transition(StateActive) {
		return apperr.InvalidOperation("connection is not authenticated")
	}

	snapshot, err := m.Storage.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		snapshot = &models.User{ID: userID}
	} else if err != nil {
		c.Transition(StateDisconnected)
		return apperr.Transient(err)
	}

	now := m.now()
	snapshot.IsOnline = true
	snapshot.LastActive = now
	if replaced := m.Registry.Register(c, snapshot, now); replaced != nil {
		logger.Info().Str("user_id", userID).Str("conn_id", replaced.ConnID()).Msg("connection replaced")
		m.Registry.DropClient(replaced)
		replaced.Close()
	}

	if err := m.Storage.SetUserPresence(ctx, userID, true, now); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist online status")
	}
	m.broadcastPresence(snapshot, true, now)

	logger.Info().Str("user_id", userID).Str("conn_id", c.ConnID()).Msg("client connected")
	return nil
}

func (m *ManagerService) disconnect(c Client) {
	c.Transition(StateDisconnected)
	m.Registry.DropClient(c)
	snapshot, owned := m.Registry.Unregister(c)
	c.Close()
	if !owned {
		// a newer connection for the same user is live; presence is unchanged
		return
	}

	userID := c.GetUserID()
	for _, convID := range m.Typing.RemoveUser(userID) {
		m.broadcastTyping(convID, snapshot, false, nil)
	}

	now := m.now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Storage.SetUserPresence(ctx, userID, false, now); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist offline status")
	}
	offline := *snapshot
	offline.IsOnline = false
	offline.LastActive = now
	m.broadcastPresence(&offline, false, now)

	logger.Info().Str("user_id", userID).Str("conn_id", c.ConnID()).Msg("client disconnected")
}

// broadcastPresence tells user's online followers and followees about a status change.
func (m *ManagerService) broadcastPresence(user *models.User, online bool, at time.Time) {
	evt := models.StatusEvent(user.ID, online, at)
	for _, id := range m.Registry.OnlineAmong(user.Contacts()) {
		if c, ok := m.Registry.ClientOf(id); ok {
			c.Deliver(evt)
		}
	}
}

// Dispatch routes one validated client event. Errors are reported back to the
// connection as events; nothing here tears the connection down.
func (m *ManagerService) Dispatch(ctx context.Context, c Client, evt models.ClientEvent) {
	m.Registry.Touch(c.GetUserID(), m.now())
	logger.Debug().Str("user_id", c.GetUserID()).Str("event", string(evt.EventType())).Str("conversation_id", evt.Conversation()).Msg("realtime event")

	switch e := evt.(type) {
	case models.JoinConversation:
		m.join(ctx, c, e.ConversationID)
	case models.LeaveConversation:
		m.Registry.Unsubscribe(e.ConversationID, c)
		m.stopTyping(e.ConversationID, c.GetUserID())
	case models.SendMessage:
		_, _ = m.SendMessage(ctx, c, chat.SendInput{
			ConversationID:  e.ConversationID,
			SenderID:        c.GetUserID(),
			Content:         e.Content,
			ClientMessageID: e.TempID,
		})
	case models.TypingStart:
		m.startTyping(ctx, c, e.ConversationID)
	case models.TypingStop:
		m.stopTyping(e.ConversationID, c.GetUserID())
	case models.MarkMessagesRead:
		if _, err := m.MarkRead(ctx, e.ConversationID, c.GetUserID()); err != nil {
			c.Deliver(models.ErrorEvent(e.EventType(), e.ConversationID, err))
		}
	default:
		c.Deliver(models.ErrorEvent(evt.EventType(), evt.Conversation(), apperr.Validation("unsupported event")))
	}
}

func (m *ManagerService) join(ctx context.Context, c Client, conversationID string) {
	if _, err := m.Conversations.EnsureParticipant(ctx, conversationID, c.GetUserID()); err != nil {
		logger.Warn().Err(err).
			Str("user_id", c.GetUserID()).
			Str("conversation_id", conversationID).
			Msg("join rejected")
		c.Deliver(models.ErrorEvent(models.EventJoinConversation, conversationID, err))
		return
	}
	m.Registry.Subscribe(conversationID, c)
}

// SendMessage persists and fans out a message. origin is the sending connection,
// or nil when the send arrived over HTTP. Persist and broadcast for one
// conversation run under its lock, so subscribers see storage order.
func (m *ManagerService) SendMessage(ctx context.Context, origin Client, in chat.SendInput) (*chat.SendResult, error) {
	unlock := m.convLocks.Lock(in.ConversationID)
	defer unlock()

	res, err := m.Messages.Send(ctx, in)
	if err != nil {
		if origin != nil {
			origin.Deliver(models.MessageErrorEvent(in.ConversationID, in.ClientMessageID, err))
		}
		return nil, err
	}

	msg, conv := res.Message, res.Conversation
	other := conv.OtherParticipant(in.SenderID)
	echoTo := origin
	if echoTo == nil {
		echoTo, _ = m.Registry.ClientOf(in.SenderID)
	}

	if !res.Duplicate {
		evt := models.NewMessageEvent(models.NewMessageView(msg, in.SenderID), "")
		delivered := make(map[Client]struct{})
		for _, sub := range m.Registry.Subscribers(conv.ID) {
			if sub == echoTo || sub.GetUserID() == in.SenderID {
				continue
			}
			sub.Deliver(evt)
			delivered[sub] = struct{}{}
		}
		// inbox refresh for a recipient who has not opened the conversation
		if rc, ok := m.Registry.ClientOf(other); ok {
			if _, done := delivered[rc]; !done {
				rc.Deliver(evt)
			}
		}
	}

	if echoTo != nil {
		echo := models.NewMessageView(msg, other)
		if !res.Duplicate {
			echo = echo.WithReadBy([]models.ReadReceipt{{UserID: in.SenderID, ReadAt: m.now()}}, other)
		}
		echoTo.Deliver(models.NewMessageEvent(echo, in.ClientMessageID))
	}

	m.stopTyping(conv.ID, in.SenderID)
	return res, nil
}

// MarkRead marks the conversation read for reader and notifies the other
// participant on their private channel.
func (m *ManagerService) MarkRead(ctx context.Context, conversationID, reader string) (*chat.ReadResult, error) {
	res, err := m.Messages.MarkRead(ctx, conversationID, reader)
	if err != nil {
		return nil, err
	}
	evt := models.MessagesReadEvent(res.Conversation.ID, reader, res.ReadAt)
	for _, p := range res.Conversation.Participants {
		if p == reader {
			continue
		}
		if c, ok := m.Registry.ClientOf(p); ok {
			c.Deliver(evt)
		}
	}
	return res, nil
}

func (m *ManagerService) startTyping(ctx context.Context, c Client, conversationID string) {
	userID := c.GetUserID()
	if !m.Registry.IsSubscribed(conversationID, c) {
		if _, err := m.Conversations.EnsureParticipant(ctx, conversationID, userID); err != nil {
			c.Deliver(models.ErrorEvent(models.EventTypingStart, conversationID, err))
			return
		}
	}
	if m.Typing.Start(conversationID, userID) {
		m.broadcastTyping(conversationID, m.snapshotOf(userID), true, c)
	}
}

func (m *ManagerService) stopTyping(conversationID, userID string) {
	if m.Typing.Stop(conversationID, userID) {
		m.broadcastTyping(conversationID, m.snapshotOf(userID), false, nil)
	}
}

func (m *ManagerService) typingExpired(conversationID, userID string) {
	m.broadcastTyping(conversationID, m.snapshotOf(userID), false, nil)
}

// broadcastTyping sends to conversation subscribers other than the typist.
func (m *ManagerService) broadcastTyping(conversationID string, user *models.User, typing bool, except Client) {
	evt := models.TypingEvent(typing, conversationID, user.Summary())
	for _, sub := range m.Registry.Subscribers(conversationID) {
		if sub == except || sub.GetUserID() == user.ID {
			continue
		}
		sub.Deliver(evt)
	}
}

func (m *ManagerService) snapshotOf(userID string) *models.User {
	if u, ok := m.Registry.Snapshot(userID); ok {
		return u
	}
	return &models.User{ID: userID}
}

// OnlineContacts returns the online subset of user's followers and followees.
func (m *ManagerService) OnlineContacts(ctx context.Context, userID string) ([]models.UserSummary, error) {
	user, err := m.Storage.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.UserSummary{}, nil
	}
	if err != nil {
		return nil, apperr.Transient(err)
	}

	online := m.Registry.OnlineAmong(user.Contacts())
	out := make([]models.UserSummary, 0, len(online))
	for _, id := range online {
		out = append(out, m.snapshotOf(id).Summary())
	}
	return out, nil
}
