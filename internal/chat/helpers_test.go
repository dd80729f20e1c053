package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialdm/backend/internal/chat"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"
	"socialdm/backend/internal/storage/memstore"
	"socialdm/backend/pkg/logger"

	"github.com/stretchr/testify/require"
)

func init() {
	logger.Disable()
}

type fixture struct {
	store *memstore.Store
	convs *chat.ConversationService
	msgs  *chat.MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	return newFixtureWith(t, store, store)
}

func newFixtureWith(t *testing.T, mem *memstore.Store, store storage.Storage) *fixture {
	t.Helper()
	convs := chat.NewConversationService(store, chat.NewClock())
	return &fixture{
		store: mem,
		convs: convs,
		msgs:  chat.NewMessageService(store, convs, storage.NewMemoryDeduper(time.Hour)),
	}
}

func (f *fixture) user(t *testing.T, id string, private bool) *models.User {
	t.Helper()
	u := &models.User{ID: id, Username: id, DisplayName: id, IsPrivate: private}
	require.NoError(t, f.store.UpsertUser(context.Background(), u))
	return u
}

func (f *fixture) follow(t *testing.T, follower, followee string) {
	t.Helper()
	ctx := context.Background()
	a, err := f.store.GetUser(ctx, follower)
	require.NoError(t, err)
	b, err := f.store.GetUser(ctx, followee)
	require.NoError(t, err)
	a.Following = append(a.Following, followee)
	b.Followers = append(b.Followers, follower)
	require.NoError(t, f.store.UpsertUser(ctx, a))
	require.NoError(t, f.store.UpsertUser(ctx, b))
}

func (f *fixture) send(t *testing.T, conv, sender, content string) *models.Message {
	t.Helper()
	res, err := f.msgs.Send(context.Background(), chat.SendInput{ConversationID: conv, SenderID: sender, Content: content})
	require.NoError(t, err)
	return res.Message
}

// flakyStore fails selected operations to exercise error mapping.
type flakyStore struct {
	storage.Storage
	failTouch    bool
	failMarkRead bool
}

var errBoom = errors.New("connection refused")

func (s *flakyStore) TouchConversation(ctx context.Context, id, messageID string, at time.Time) error {
	if s.failTouch {
		return errBoom
	}
	return s.Storage.TouchConversation(ctx, id, messageID, at)
}

func (s *flakyStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	if s.failMarkRead {
		return 0, errBoom
	}
	return s.Storage.MarkConversationRead(ctx, conversationID, readerID, at)
}

