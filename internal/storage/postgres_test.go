package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockService(t *testing.T) (*storage.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return storage.NewStorageService(gdb), mock
}

func TestService_MarkConversationRead_UsesAtomicInsert(t *testing.T) {
	svc, mock := newMockService(t)
	at := time.Now()

	mock.ExpectExec(`INSERT INTO message_reads \(message_id, user_id, read_at\)\s+SELECT id, \$1, \$2 FROM messages WHERE conversation_id = \$3 AND sender_id <> \$4\s+ON CONFLICT \(message_id, user_id\) DO NOTHING`).
		WithArgs("bob", at, "conv-1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := svc.MarkConversationRead(context.Background(), "conv-1", "bob", at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_MarkConversationRead_WrapsFailure(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`INSERT INTO message_reads`).WillReturnError(errors.New("connection reset"))

	_, err := svc.MarkConversationRead(context.Background(), "conv-1", "bob", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark conversation read")
	assert.False(t, errors.Is(err, storage.ErrNotFound))
}

func TestService_AcceptConversationRequest(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE "conversations" SET "is_message_request"=\$1,"request_accepted"=\$2 WHERE \(id = \$3 AND \$4 = ANY\(participants\)\) AND \(is_message_request = \$5 AND request_accepted = \$6 AND request_from <> \$7\)`).
		WithArgs(false, true, "conv-1", "bob", true, false, "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{"id", "participants", "pair_key", "is_message_request", "request_from", "request_accepted"}).
		AddRow("conv-1", "{alice,bob}", "alice|bob", false, "alice", true)
	mock.ExpectQuery(`SELECT \* FROM "conversations" WHERE id = \$1`).WillReturnRows(rows)

	conv, err := svc.AcceptConversationRequest(context.Background(), "conv-1", "bob")
	require.NoError(t, err)
	assert.True(t, conv.RequestAccepted)
	assert.False(t, conv.IsMessageRequest)
	assert.Equal(t, []string{"alice", "bob"}, []string(conv.Participants))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_AcceptConversationRequest_NoPendingRequest(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE "conversations" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.AcceptConversationRequest(context.Background(), "conv-1", "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_GetConversation_NotFound(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(`SELECT \* FROM "conversations" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_CreateConversation_DuplicatePair(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`INSERT INTO "conversations"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_conversations_pair_key" (SQLSTATE 23505)`))

	conv := models.NewConversation("alice", "bob", true, time.Now())
	err := svc.CreateConversation(context.Background(), conv)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestService_AddMessageDeletedFor(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE messages SET deleted_for = array_append\(deleted_for, \$1\)\s+WHERE id = \$2 AND NOT \(\$3 = ANY\(deleted_for\)\)`).
		WithArgs("alice", "msg-1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.AddMessageDeletedFor(context.Background(), "msg-1", "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_MarkMessageDeleted_Missing(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE "messages" SET "is_deleted"=\$1 WHERE id = \$2`).
		WithArgs(true, "msg-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, svc.MarkMessageDeleted(context.Background(), "msg-404"), storage.ErrNotFound)
}

func TestService_SetUserPresence(t *testing.T) {
	svc, mock := newMockService(t)
	at := time.Now()

	mock.ExpectExec(`UPDATE "users" SET "is_online"=\$1,"last_active"=\$2 WHERE id = \$3`).
		WithArgs(true, at, "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.SetUserPresence(context.Background(), "alice", true, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ListMessages_PreloadsReceipts(t *testing.T) {
	svc, mock := newMockService(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE conversation_id = \$1 AND NOT \(\$2 = ANY\(deleted_for\)\) ORDER BY created_at DESC,id DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "sender_id", "content", "created_at", "is_deleted", "deleted_for"}).
			AddRow("msg-1", "conv-1", "alice", "hi", created, false, "{}"))
	mock.ExpectQuery(`SELECT \* FROM "message_reads" WHERE "message_reads"."message_id" = \$1 ORDER BY read_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "user_id", "read_at"}).
			AddRow("msg-1", "bob", created.Add(time.Minute)))

	msgs, err := svc.ListMessages(context.Background(), "conv-1", "bob", 0, 30)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	require.Len(t, msgs[0].ReadBy, 1)
	assert.Equal(t, "bob", msgs[0].ReadBy[0].UserID)
	assert.NotNil(t, msgs[0].DeletedFor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
