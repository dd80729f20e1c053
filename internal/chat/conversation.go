// Package chat implements conversation access control and the message store
// coordinator on top of a storage.Storage.
package chat

import (
	"context"
	"errors"
	"strings"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"
	"socialdm/backend/pkg/logger"
)

type ConversationService struct {
	store storage.Storage
	clock *Clock
}

func NewConversationService(store storage.Storage, clock *Clock) *ConversationService {
	if clock == nil {
		clock = NewClock()
	}
	return &ConversationService{store: store, clock: clock}
}

// CanMessageFreely reports whether initiator may open a conversation with target
// without it becoming a message request.
func CanMessageFreely(initiator string, initiatorUser, target *models.User) bool {
	if !target.IsPrivate || target.HasFollower(initiator) {
		return true
	}
	return initiatorUser != nil && initiatorUser.Follows(target.ID)
}

// AuthorizeSend checks that sender may post into conv and reports whether the
// message is sent while the conversation is still an unaccepted request.
func AuthorizeSend(conv *models.Conversation, sender string) (bool, error) {
	if !conv.HasParticipant(sender) {
		return false, apperr.AccessDenied("not a participant of this conversation")
	}
	if conv.IsPendingRequest() && conv.RequestFrom != sender {
		return false, apperr.AccessDenied("accept the message request before replying")
	}
	return conv.IsPendingRequest(), nil
}

// GetOrCreate returns the conversation between initiator and target, creating it
// on first contact. The pair is unique regardless of argument order.
func (s *ConversationService) GetOrCreate(ctx context.Context, initiator, target string) (*models.Conversation, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, apperr.Validation("participantId is required")
	}
	if initiator == target {
		return nil, apperr.InvalidOperation("cannot start a conversation with yourself")
	}

	targetUser, err := s.store.GetUser(ctx, target)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}

	existing, err := s.store.FindConversationByPair(ctx, initiator, target)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeErr(err, "conversation not found")
	}

	initiatorUser, err := s.store.GetUser(ctx, initiator)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, storeErr(err, "user not found")
	}

	free := CanMessageFreely(initiator, initiatorUser, targetUser)
	conv := models.NewConversation(initiator, target, free, s.clock.Now())
	err = s.store.CreateConversation(ctx, conv)
	if errors.Is(err, storage.ErrDuplicate) {
		// lost the race against the other participant; the stored row wins
		existing, err := s.store.FindConversationByPair(ctx, initiator, target)
		return existing, storeErr(err, "conversation not found")
	}
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}

	logger.Info().
		Str("conversation_id", conv.ID).
		Str("initiator", initiator).
		Bool("message_request", conv.IsMessageRequest).
		Msg("conversation created")
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	return conv, nil
}

// EnsureParticipant loads the conversation and fails with AccessDenied if user is not in it.
func (s *ConversationService) EnsureParticipant(ctx context.Context, id, userID string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.AccessDenied("not a participant of this conversation")
	}
	return conv, nil
}

// Accept turns a pending request addressed to accepter into a normal conversation.
// Accepting a conversation that is already accepted is a no-op. The requester
// and non-participants get NotFound.
func (s *ConversationService) Accept(ctx context.Context, id, accepter string) (*models.Conversation, error) {
	conv, err := s.store.AcceptConversationRequest(ctx, id, accepter)
	if err == nil {
		logger.Info().Str("conversation_id", id).Str("user_id", accepter).Msg("message request accepted")
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeErr(err, "message request not found")
	}

	current, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, storeErr(err, "message request not found")
	}
	if current.HasParticipant(accepter) && !current.IsPendingRequest() {
		return current, nil
	}
	return nil, apperr.NotFound("message request not found")
}

func (s *ConversationService) ListAccepted(ctx context.Context, userID string) ([]models.ConversationView, error) {
	return s.list(ctx, userID, storage.FilterAccepted)
}

func (s *ConversationService) ListRequests(ctx context.Context, userID string) ([]models.ConversationView, error) {
	return s.list(ctx, userID, storage.FilterIncomingRequests)
}

func (s *ConversationService) list(ctx context.Context, userID string, filter storage.ConversationFilter) ([]models.ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, userID, filter)
	if err != nil {
		return nil, storeErr(err, "conversation not found")
	}
	return s.Views(ctx, convs, userID)
}

// View resolves one conversation for viewer.
func (s *ConversationService) View(ctx context.Context, conv *models.Conversation, viewer string) (models.ConversationView, error) {
	views, err := s.Views(ctx, []models.Conversation{*conv}, viewer)
	if err != nil {
		return models.ConversationView{}, err
	}
	return views[0], nil
}

// Views resolves participants and last messages with one batched lookup each.
func (s *ConversationService) Views(ctx context.Context, convs []models.Conversation, viewer string) ([]models.ConversationView, error) {
	userIDs := make([]string, 0, len(convs)*2)
	msgIDs := make([]string, 0, len(convs))
	seen := make(map[string]struct{})
	for _, c := range convs {
		for _, p := range c.Participants {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				userIDs = append(userIDs, p)
			}
		}
		if c.LastMessageID != nil {
			msgIDs = append(msgIDs, *c.LastMessageID)
		}
	}

	users, err := s.store.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	msgs, err := s.store.GetMessages(ctx, msgIDs)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}

	views := make([]models.ConversationView, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		var last *models.MessageView
		if c.LastMessageID != nil {
			if m, ok := msgs[*c.LastMessageID]; ok && !m.IsDeletedFor(viewer) {
				v := models.NewMessageView(m, c.OtherParticipant(viewer))
				last = &v
			}
		}
		views = append(views, models.NewConversationView(c, users, last))
	}
	return views, nil
}
