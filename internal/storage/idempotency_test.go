package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialdm/backend/internal/storage"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDeduper_LookupMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	d := storage.NewRedisDeduper(rdb, time.Hour)

	mock.ExpectGet("dm:idem:alice:c1:tmp-1").RedisNil()

	id, ok, err := d.Lookup(context.Background(), "alice", "c1", "tmp-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDeduper_RememberThenHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	d := storage.NewRedisDeduper(rdb, time.Hour)

	mock.ExpectSetNX("dm:idem:alice:c1:tmp-1", "msg-1", time.Hour).SetVal(true)
	mock.ExpectGet("dm:idem:alice:c1:tmp-1").SetVal("msg-1")

	require.NoError(t, d.Remember(context.Background(), "alice", "c1", "tmp-1", "msg-1"))
	id, ok, err := d.Lookup(context.Background(), "alice", "c1", "tmp-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "msg-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDeduper_LookupError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	d := storage.NewRedisDeduper(rdb, time.Hour)

	mock.ExpectGet("dm:idem:alice:c1:tmp-1").SetErr(errors.New("redis down"))

	_, _, err := d.Lookup(context.Background(), "alice", "c1", "tmp-1")
	assert.Error(t, err)
}

func TestMemoryDeduper_FirstBindingWins(t *testing.T) {
	d := storage.NewMemoryDeduper(time.Hour)
	ctx := context.Background()

	require.NoError(t, d.Remember(ctx, "alice", "c1", "tmp-1", "msg-1"))
	require.NoError(t, d.Remember(ctx, "alice", "c1", "tmp-1", "msg-2"))

	id, ok, err := d.Lookup(ctx, "alice", "c1", "tmp-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "msg-1", id)

	_, ok, _ = d.Lookup(ctx, "bob", "c1", "tmp-1")
	assert.False(t, ok, "keys are scoped per sender")

	_, ok, _ = d.Lookup(ctx, "alice", "c2", "tmp-1")
	assert.False(t, ok, "keys are scoped per conversation")
}

func TestMemoryDeduper_SameTokenInTwoConversations(t *testing.T) {
	d := storage.NewMemoryDeduper(time.Hour)
	ctx := context.Background()

	require.NoError(t, d.Remember(ctx, "alice", "c1", "tmp-1", "msg-1"))
	require.NoError(t, d.Remember(ctx, "alice", "c2", "tmp-1", "msg-2"))

	id, _, _ := d.Lookup(ctx, "alice", "c1", "tmp-1")
	assert.Equal(t, "msg-1", id)
	id, _, _ = d.Lookup(ctx, "alice", "c2", "tmp-1")
	assert.Equal(t, "msg-2", id)
}

func TestMemoryDeduper_Expires(t *testing.T) {
	d := storage.NewMemoryDeduper(time.Nanosecond)
	ctx := context.Background()

	require.NoError(t, d.Remember(ctx, "alice", "c1", "tmp-1", "msg-1"))
	time.Sleep(time.Millisecond)

	_, ok, err := d.Lookup(ctx, "alice", "c1", "tmp-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
