package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/config"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"
	"socialdm/backend/pkg/logger"
)

type MessageService struct {
	store  storage.Storage
	convs  *ConversationService
	dedupe storage.Deduper
	clock  *Clock
}

// NewMessageService wires the coordinator. dedupe may be nil, in which case the
// store's unique (sender, client message id) index is the only guard.
func NewMessageService(store storage.Storage, convs *ConversationService, dedupe storage.Deduper) *MessageService {
	return &MessageService{store: store, convs: convs, dedupe: dedupe, clock: convs.clock}
}

type SendInput struct {
	ConversationID  string
	SenderID        string
	Content         string
	ClientMessageID string
}

type SendResult struct {
	Message      *models.Message
	Conversation *models.Conversation
	// Duplicate is set when ClientMessageID matched an earlier send.
	Duplicate bool
}

// ValidateContent trims content and enforces the length bounds.
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > config.MaxMessageLength {
		return "", apperr.Validation("message content exceeds 2000 characters")
	}
	return content, nil
}

// Send authorizes and persists a message. A retried send carrying the same
// ClientMessageID returns the originally stored message.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	content, err := ValidateContent(in.Content)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		return nil, apperr.Validation("conversationId is required")
	}

	conv, err := s.convs.Get(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	isRequest, err := AuthorizeSend(conv, in.SenderID)
	if err != nil {
		logger.Debug().Str("conversation_id", conv.ID).Str("user_id", in.SenderID).Msg("send denied")
		return nil, err
	}

	if in.ClientMessageID != "" {
		if existing := s.findDuplicate(ctx, in.SenderID, conv.ID, in.ClientMessageID); existing != nil {
			return &SendResult{Message: existing, Conversation: conv, Duplicate: true}, nil
		}
	}

	msg := &models.Message{
		ConversationID:   conv.ID,
		SenderID:         in.SenderID,
		Content:          content,
		CreatedAt:        s.clock.Now(),
		IsRequestMessage: isRequest,
	}
	if in.ClientMessageID != "" {
		token := in.ClientMessageID
		msg.ClientMessageID = &token
	}

	err = s.store.CreateMessage(ctx, msg)
	if errors.Is(err, storage.ErrDuplicate) && msg.ClientMessageID != nil {
		existing, findErr := s.store.FindMessageByClientID(ctx, in.SenderID, conv.ID, in.ClientMessageID)
		if findErr != nil {
			return nil, storeErr(findErr, "message not found")
		}
		return &SendResult{Message: existing, Conversation: conv, Duplicate: true}, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to persist message")
		return nil, storeErr(err, "conversation not found")
	}

	if s.dedupe != nil && msg.ClientMessageID != nil {
		if err := s.dedupe.Remember(ctx, in.SenderID, conv.ID, in.ClientMessageID, msg.ID); err != nil {
			logger.Warn().Err(err).Msg("idempotency cache write failed")
		}
	}

	// lastActivity is advisory, a failed touch does not fail the send
	if err := s.store.TouchConversation(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to update conversation activity")
	} else {
		id := msg.ID
		conv.LastMessageID = &id
		conv.LastActivity = msg.CreatedAt
	}

	return &SendResult{Message: msg, Conversation: conv}, nil
}

func (s *MessageService) findDuplicate(ctx context.Context, senderID, conversationID, clientID string) *models.Message {
	if s.dedupe == nil {
		return nil
	}
	id, ok, err := s.dedupe.Lookup(ctx, senderID, conversationID, clientID)
	if err != nil {
		logger.Warn().Err(err).Msg("idempotency cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil || msg.ConversationID != conversationID {
		return nil
	}
	return msg
}

// NormalizePage clamps paging arguments to sane bounds.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}
	return page, limit
}

// List returns one page of history. Page 1 holds the newest messages; each page
// is returned oldest first.
func (s *MessageService) List(ctx context.Context, conversationID, requester string, page, limit int) ([]models.MessageView, error) {
	conv, err := s.convs.EnsureParticipant(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}
	page, limit = NormalizePage(page, limit)

	msgs, err := s.store.ListMessages(ctx, conv.ID, requester, (page-1)*limit, limit)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}

	other := conv.OtherParticipant(requester)
	views := make([]models.MessageView, len(msgs))
	for i := range msgs {
		views[len(msgs)-1-i] = models.NewMessageView(&msgs[i], other)
	}
	return views, nil
}

type ReadResult struct {
	Conversation *models.Conversation
	ReaderID     string
	ReadAt       time.Time
	// Count is the number of receipts added by this call.
	Count int64
}

// MarkRead adds a receipt for reader on every message sent by someone else
// that reader has not read yet. Repeating it is harmless.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, reader string) (*ReadResult, error) {
	conv, err := s.convs.EnsureParticipant(ctx, conversationID, reader)
	if err != nil {
		return nil, err
	}
	at := s.clock.Now()
	n, err := s.store.MarkConversationRead(ctx, conv.ID, reader, at)
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to mark messages read")
		return nil, storeErr(err, "conversation not found")
	}
	return &ReadResult{Conversation: conv, ReaderID: reader, ReadAt: at, Count: n}, nil
}

type DeleteResult struct {
	Message      *models.Message
	Conversation *models.Conversation
	Scope        string
}

// SoftDelete hides a message for requester ("me") or flags it deleted for all
// participants ("everyone", sender only). Nothing is physically removed.
func (s *MessageService) SoftDelete(ctx context.Context, messageID, requester, scope string) (*DeleteResult, error) {
	if scope != config.DeleteForMe && scope != config.DeleteForEveryone {
		return nil, apperr.Validation(`deleteFor must be "me" or "everyone"`)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}
	conv, err := s.convs.EnsureParticipant(ctx, msg.ConversationID, requester)
	if err != nil {
		return nil, err
	}

	switch scope {
	case config.DeleteForEveryone:
		if msg.SenderID != requester {
			return nil, apperr.AccessDenied("only the sender can delete a message for everyone")
		}
		err = s.store.MarkMessageDeleted(ctx, msg.ID)
	default:
		err = s.store.AddMessageDeletedFor(ctx, msg.ID, requester)
	}
	if err != nil {
		return nil, storeErr(err, "message not found")
	}

	updated, err := s.store.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}
	return &DeleteResult{Message: updated, Conversation: conv, Scope: scope}, nil
}
