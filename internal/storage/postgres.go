package storage

import (
	"context"
	"strings"
	"time"

	"socialdm/backend/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const markReadSQL = `INSERT INTO message_reads (message_id, user_id, read_at)
SELECT id, ?, ? FROM messages WHERE conversation_id = ? AND sender_id <> ?
ON CONFLICT (message_id, user_id) DO NOTHING`

const addDeletedForSQL = `UPDATE messages SET deleted_for = array_append(deleted_for, ?)
WHERE id = ? AND NOT (? = ANY(deleted_for))`

// Service is the gorm/postgres gateway. Read receipts live in message_reads
// and are appended with INSERT ... ON CONFLICT DO NOTHING.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

var _ Storage = (*Service)(nil)

func (s *Service) Migrate(ctx context.Context) error {
	err := s.DB.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.ReadReceipt{},
	)
	return errors.Wrap(err, "storage: migrate")
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get user")
	}
	return &user, nil
}

func (s *Service) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err, "get users")
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// UpsertUser зберігає користувача в PostgreSQL
func (s *Service) UpsertUser(ctx context.Context, user *models.User) error {
	return translate(s.DB.WithContext(ctx).Save(user).Error, "upsert user")
}

func (s *Service) SetUserPresence(ctx context.Context, id string, online bool, at time.Time) error {
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online":   online,
			"last_active": at,
		}).Error
	return translate(err, "set user presence")
}

func (s *Service) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).Where("pair_key = ?", models.PairKey(a, b)).First(&conv).Error
	if err != nil {
		return nil, translate(err, "find conversation by pair")
	}
	return &conv, nil
}

func (s *Service) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return translate(s.DB.WithContext(ctx).Create(conv).Error, "create conversation")
}

func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, translate(err, "get conversation")
	}
	return &conv, nil
}

func (s *Service) ListConversations(ctx context.Context, userID string, filter ConversationFilter) ([]models.Conversation, error) {
	q := s.DB.WithContext(ctx).Where("? = ANY(participants)", userID)
	switch filter {
	case FilterIncomingRequests:
		q = q.Where("is_message_request = ? AND request_accepted = ? AND request_from <> ?", true, false, userID)
	default:
		q = q.Where("is_message_request = ?", false)
	}

	var convs []models.Conversation
	if err := q.Order("last_activity DESC").Find(&convs).Error; err != nil {
		return nil, translate(err, "list conversations")
	}
	return convs, nil
}

// AcceptConversationRequest flips a pending request addressed to accepterID in a
// single conditional UPDATE. ErrNotFound means no such pending request exists.
func (s *Service) AcceptConversationRequest(ctx context.Context, id, accepterID string) (*models.Conversation, error) {
	res := s.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND ? = ANY(participants)", id, accepterID).
		Where("is_message_request = ? AND request_accepted = ? AND request_from <> ?", true, false, accepterID).
		Updates(map[string]interface{}{
			"is_message_request": false,
			"request_accepted":   true,
		})
	if res.Error != nil {
		return nil, translate(res.Error, "accept conversation request")
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

// TouchConversation never moves lastActivity backwards.
func (s *Service) TouchConversation(ctx context.Context, id, messageID string, at time.Time) error {
	err := s.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND last_activity <= ?", id, at).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_activity":   at,
		}).Error
	return translate(err, "touch conversation")
}

func (s *Service) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.Prepare()
	err := s.DB.WithContext(ctx).Omit(clause.Associations).Create(msg).Error
	return translate(err, "create message")
}

func (s *Service) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.withReceipts(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, translate(err, "get message")
	}
	msg.Prepare()
	return &msg, nil
}

func (s *Service) GetMessages(ctx context.Context, ids []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var msgs []models.Message
	if err := s.withReceipts(ctx).Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, translate(err, "get messages")
	}
	for i := range msgs {
		msgs[i].Prepare()
		out[msgs[i].ID] = &msgs[i]
	}
	return out, nil
}

func (s *Service) FindMessageByClientID(ctx context.Context, senderID, conversationID, clientMessageID string) (*models.Message, error) {
	var msg models.Message
	err := s.withReceipts(ctx).
		Where("sender_id = ? AND conversation_id = ? AND client_message_id = ?", senderID, conversationID, clientMessageID).
		First(&msg).Error
	if err != nil {
		return nil, translate(err, "find message by client id")
	}
	msg.Prepare()
	return &msg, nil
}

// ListMessages returns the page newest first.
func (s *Service) ListMessages(ctx context.Context, conversationID, viewerID string, skip, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.withReceipts(ctx).
		Where("conversation_id = ? AND NOT (? = ANY(deleted_for))", conversationID, viewerID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err, "list messages")
	}
	for i := range msgs {
		msgs[i].Prepare()
	}
	return msgs, nil
}

func (s *Service) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Exec(markReadSQL, readerID, at, conversationID, readerID)
	if res.Error != nil {
		return 0, translate(res.Error, "mark conversation read")
	}
	return res.RowsAffected, nil
}

func (s *Service) MarkMessageDeleted(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Update("is_deleted", true)
	if res.Error != nil {
		return translate(res.Error, "mark message deleted")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) AddMessageDeletedFor(ctx context.Context, id, userID string) error {
	err := s.DB.WithContext(ctx).Exec(addDeletedForSQL, userID, id, userID).Error
	return translate(err, "add message deleted for")
}

func (s *Service) withReceipts(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Preload("ReadBy", func(db *gorm.DB) *gorm.DB {
		return db.Order("read_at ASC")
	})
}

// translate maps driver errors onto the package sentinels and wraps the rest.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrDuplicate
	default:
		return errors.Wrap(err, "storage: "+op)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value")
}
