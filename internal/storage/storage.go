package storage

import (
	"context"
	"errors"
	"time"

	"socialdm/backend/internal/models"
)

var (
	// ErrNotFound is returned when the referenced record does not exist or a
	// conditional update matched nothing.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("storage: duplicate")
)

// ConversationFilter selects which of a user's conversations to list.
type ConversationFilter int

const (
	// FilterAccepted lists conversations that are not message requests.
	FilterAccepted ConversationFilter = iota
	// FilterIncomingRequests lists pending requests sent to the user by someone else.
	FilterIncomingRequests
)

// Storage is the persistence gateway consumed by the chat services.
// Implementations must make MarkConversationRead and AddMessageDeletedFor
// atomic append-if-absent operations.
type Storage interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	SetUserPresence(ctx context.Context, id string, online bool, at time.Time) error

	FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, filter ConversationFilter) ([]models.Conversation, error)
	AcceptConversationRequest(ctx context.Context, id, accepterID string) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id, messageID string, at time.Time) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessages(ctx context.Context, ids []string) (map[string]*models.Message, error)
	FindMessageByClientID(ctx context.Context, senderID, conversationID, clientMessageID string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID, viewerID string, skip, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	MarkMessageDeleted(ctx context.Context, id string) error
	AddMessageDeletedFor(ctx context.Context, id, userID string) error

	Migrate(ctx context.Context) error
}
