package mongostore

import (
	"context"
	"time"

	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type Store struct {
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

var _ storage.Storage = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}
}

// Migrate creates the indexes the queries rely on.
func (s *Store) Migrate(ctx context.Context) error {
	return s.EnsureIndexes(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateMany(ctx, conversationIndexes()); err != nil {
		return errors.Wrap(err, "create conversation indexes")
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes()); err != nil {
		return errors.Wrap(err, "create message indexes")
	}
	return nil
}

func conversationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastActivity", Value: -1}}},
	}
}

func messageIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{
			Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "conversationId", Value: 1}, {Key: "clientMessageId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"clientMessageId": bson.M{"$exists": true}}),
		},
	}
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, translate(err, "get user")
	}
	return &u, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translate(err, "get users")
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, translate(err, "decode users")
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		_ = user.BeforeCreate(nil)
	}
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	return translate(err, "upsert user")
}

func (s *Store) SetUserPresence(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isOnline": online, "lastActive": at}})
	return translate(err, "set user presence")
}

func (s *Store) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"pairKey": models.PairKey(a, b)}).Decode(&c); err != nil {
		return nil, translate(err, "find conversation by pair")
	}
	return &c, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_ = conv.BeforeCreate(nil)
	_, err := s.conversations.InsertOne(ctx, conv)
	return translate(err, "create conversation")
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate(err, "get conversation")
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, filter storage.ConversationFilter) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastActivity", Value: -1}})
	cur, err := s.conversations.Find(ctx, listConversationsFilter(userID, filter), opts)
	if err != nil {
		return nil, translate(err, "list conversations")
	}
	convs := make([]models.Conversation, 0)
	if err := cur.All(ctx, &convs); err != nil {
		return nil, translate(err, "decode conversations")
	}
	return convs, nil
}

func (s *Store) AcceptConversationRequest(ctx context.Context, id, accepterID string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.conversations.FindOneAndUpdate(ctx,
		acceptRequestFilter(id, accepterID),
		bson.M{"$set": bson.M{"isMessageRequest": false, "requestAccepted": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return nil, translate(err, "accept conversation request")
	}
	return &c, nil
}

func (s *Store) TouchConversation(ctx context.Context, id, messageID string, at time.Time) error {
	_, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": id, "lastActivity": bson.M{"$lte": at}},
		bson.M{"$set": bson.M{"lastMessageId": messageID, "lastActivity": at}},
	)
	return translate(err, "touch conversation")
}

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.Prepare()
	_, err := s.messages.InsertOne(ctx, msg)
	return translate(err, "create message")
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, translate(err, "get message")
	}
	m.Prepare()
	return &m, nil
}

func (s *Store) GetMessages(ctx context.Context, ids []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.messages.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translate(err, "get messages")
	}
	var msgs []models.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, translate(err, "decode messages")
	}
	for i := range msgs {
		msgs[i].Prepare()
		out[msgs[i].ID] = &msgs[i]
	}
	return out, nil
}

func (s *Store) FindMessageByClientID(ctx context.Context, senderID, conversationID, clientMessageID string) (*models.Message, error) {
	var m models.Message
	err := s.messages.FindOne(ctx, bson.M{"senderId": senderID, "conversationId": conversationID, "clientMessageId": clientMessageID}).Decode(&m)
	if err != nil {
		return nil, translate(err, "find message by client id")
	}
	m.Prepare()
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID, viewerID string, skip, limit int) ([]models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, listMessagesFilter(conversationID, viewerID), opts)
	if err != nil {
		return nil, translate(err, "list messages")
	}
	msgs := make([]models.Message, 0, limit)
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, translate(err, "decode messages")
	}
	for i := range msgs {
		msgs[i].Prepare()
	}
	return msgs, nil
}

// MarkConversationRead relies on the filter excluding documents that already
// carry the reader, which makes each per-document $push an append-if-absent.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	res, err := s.messages.UpdateMany(ctx, markReadFilter(conversationID, readerID), markReadUpdate(readerID, at))
	if err != nil {
		return 0, translate(err, "mark conversation read")
	}
	return res.ModifiedCount, nil
}

func (s *Store) MarkMessageDeleted(ctx context.Context, id string) error {
	res, err := s.messages.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isDeleted": true}})
	if err != nil {
		return translate(err, "mark message deleted")
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AddMessageDeletedFor(ctx context.Context, id, userID string) error {
	res, err := s.messages.UpdateOne(ctx, bson.M{"_id": id}, deletedForUpdate(userID))
	if err != nil {
		return translate(err, "add message deleted for")
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicate
	default:
		return errors.Wrap(err, "mongostore: "+op)
	}
}
