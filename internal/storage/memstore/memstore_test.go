package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"
	"socialdm/backend/internal/storage/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, s *memstore.Store, conv, sender string, at time.Time) *models.Message {
	t.Helper()
	m := &models.Message{ConversationID: conv, SenderID: sender, Content: "x", CreatedAt: at}
	require.NoError(t, s.CreateMessage(context.Background(), m))
	return m
}

func TestStore_CreateConversation_UniquePair(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, models.NewConversation("a", "b", true, time.Now())))
	err := s.CreateConversation(ctx, models.NewConversation("b", "a", true, time.Now()))
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	found, err := s.FindConversationByPair(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, models.PairKey("a", "b"), found.PairKey)
}

func TestStore_MarkConversationRead_ConcurrentReaders(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	msg := seedMessage(t, s, "c1", "sender", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		reader := fmt.Sprintf("r%d", i%2)
		go func() {
			defer wg.Done()
			_, err := s.MarkConversationRead(ctx, "c1", reader, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, got.ReadBy, 2, "one receipt per reader survives")
	assert.False(t, got.IsReadBy("sender"))
}

func TestStore_ListMessages_ExcludesDeletedForViewer(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	base := time.Now()
	m1 := seedMessage(t, s, "c1", "a", base)
	seedMessage(t, s, "c1", "b", base.Add(time.Millisecond))

	require.NoError(t, s.AddMessageDeletedFor(ctx, m1.ID, "a"))
	require.NoError(t, s.AddMessageDeletedFor(ctx, m1.ID, "a"))

	forA, err := s.ListMessages(ctx, "c1", "a", 0, 10)
	require.NoError(t, err)
	assert.Len(t, forA, 1)

	forB, err := s.ListMessages(ctx, "c1", "b", 0, 10)
	require.NoError(t, err)
	require.Len(t, forB, 2)
	assert.Equal(t, m1.ID, forB[1].ID, "newest first")

	got, _ := s.GetMessage(ctx, m1.ID)
	assert.Equal(t, []string{"a"}, []string(got.DeletedFor))
}

func TestStore_ListMessages_PastEnd(t *testing.T) {
	s := memstore.New()
	seedMessage(t, s, "c1", "a", time.Now())

	page, err := s.ListMessages(context.Background(), "c1", "a", 5, 10)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	msg := seedMessage(t, s, "c1", "a", time.Now())

	got, _ := s.GetMessage(ctx, msg.ID)
	got.ReadBy = append(got.ReadBy, models.ReadReceipt{UserID: "mallory"})

	again, _ := s.GetMessage(ctx, msg.ID)
	assert.Empty(t, again.ReadBy)
}

func TestStore_CreateMessage_DuplicateClientID(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	token := "tmp-1"

	first := &models.Message{ConversationID: "c1", SenderID: "a", Content: "hi", ClientMessageID: &token}
	require.NoError(t, s.CreateMessage(ctx, first))

	second := &models.Message{ConversationID: "c1", SenderID: "a", Content: "hi", ClientMessageID: &token}
	assert.ErrorIs(t, s.CreateMessage(ctx, second), storage.ErrDuplicate)

	other := &models.Message{ConversationID: "c1", SenderID: "b", Content: "hi", ClientMessageID: &token}
	assert.NoError(t, s.CreateMessage(ctx, other), "tokens are scoped per sender")

	elsewhere := &models.Message{ConversationID: "c2", SenderID: "a", Content: "hi", ClientMessageID: &token}
	assert.NoError(t, s.CreateMessage(ctx, elsewhere), "tokens are scoped per conversation")

	found, err := s.FindMessageByClientID(ctx, "a", "c1", token)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	found, err = s.FindMessageByClientID(ctx, "a", "c2", token)
	require.NoError(t, err)
	assert.Equal(t, elsewhere.ID, found.ID)
}

func TestStore_AcceptConversationRequest(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	conv := models.NewConversation("a", "b", false, time.Now())
	require.NoError(t, s.CreateConversation(ctx, conv))

	_, err := s.AcceptConversationRequest(ctx, conv.ID, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound, "the requester cannot accept their own request")

	accepted, err := s.AcceptConversationRequest(ctx, conv.ID, "b")
	require.NoError(t, err)
	assert.True(t, accepted.RequestAccepted)

	_, err = s.AcceptConversationRequest(ctx, conv.ID, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_TouchConversation_NeverMovesBackwards(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	now := time.Now()
	conv := models.NewConversation("a", "b", true, now)
	require.NoError(t, s.CreateConversation(ctx, conv))

	require.NoError(t, s.TouchConversation(ctx, conv.ID, "m2", now.Add(2*time.Second)))
	require.NoError(t, s.TouchConversation(ctx, conv.ID, "m1", now.Add(time.Second)))

	got, _ := s.GetConversation(ctx, conv.ID)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, "m2", *got.LastMessageID)
}
