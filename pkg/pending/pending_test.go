package pending_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"
	"socialdm/backend/pkg/pending"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestTable_Confirm(t *testing.T) {
	tbl := pending.New(10 * time.Second)
	_, err := tbl.Add("tmp-1", "c1", "hi", t0)
	require.NoError(t, err)

	_, err = tbl.Add("tmp-1", "c1", "hi", t0)
	assert.True(t, errors.Is(err, pending.ErrDuplicateTempID))

	op, changed := tbl.Apply(models.NewMessageEvent(models.MessageView{ID: "m1"}, "tmp-1"))
	require.True(t, changed)
	assert.Equal(t, pending.StatusConfirmed, op.Status)
	assert.Equal(t, "m1", op.MessageID)

	_, changed = tbl.Apply(models.NewMessageEvent(models.MessageView{ID: "m1"}, "tmp-1"))
	assert.False(t, changed, "a replayed echo is a no-op")
	assert.Empty(t, tbl.Pending())
}

func TestTable_Fail(t *testing.T) {
	tbl := pending.New(10 * time.Second)
	_, _ = tbl.Add("tmp-1", "c1", "", t0)

	op, changed := tbl.Apply(models.MessageErrorEvent("c1", "tmp-1", apperr.Validation("message content is required")))
	require.True(t, changed)
	assert.Equal(t, pending.StatusFailed, op.Status)
	assert.Equal(t, "message content is required", op.Error)
}

func TestTable_IgnoresUnrelatedEvents(t *testing.T) {
	tbl := pending.New(time.Second)
	_, _ = tbl.Add("tmp-1", "c1", "hi", t0)

	_, changed := tbl.Apply(models.NewMessageEvent(models.MessageView{ID: "m9"}, ""))
	assert.False(t, changed, "messages from others carry no tempId")
	_, changed = tbl.Apply(models.StatusEvent("bob", true, t0))
	assert.False(t, changed)
	_, changed = tbl.Apply(models.NewMessageEvent(models.MessageView{ID: "m9"}, "tmp-unknown"))
	assert.False(t, changed)
}

func TestTable_ExpireAfterGrace(t *testing.T) {
	tbl := pending.New(10 * time.Second)
	_, _ = tbl.Add("tmp-1", "c1", "a", t0)
	_, _ = tbl.Add("tmp-2", "c1", "b", t0.Add(5*time.Second))

	assert.Empty(t, tbl.Expire(t0.Add(9*time.Second)))

	expired := tbl.Expire(t0.Add(12 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, "tmp-1", expired[0].TempID)
	assert.Equal(t, pending.ErrExpired.Error(), expired[0].Error)

	pend := tbl.Pending()
	require.Len(t, pend, 1)
	assert.Equal(t, "tmp-2", pend[0].TempID)
}

func TestTable_LateConfirmationRescuesExpired(t *testing.T) {
	tbl := pending.New(time.Second)
	_, _ = tbl.Add("tmp-1", "c1", "a", t0)
	tbl.Expire(t0.Add(time.Minute))

	op, changed := tbl.Apply(models.NewMessageEvent(models.MessageView{ID: "m1"}, "tmp-1"))
	require.True(t, changed)
	assert.Equal(t, pending.StatusConfirmed, op.Status)
	assert.Empty(t, op.Error)

	_, changed = tbl.Apply(models.MessageErrorEvent("c1", "tmp-1", apperr.Validation("x")))
	assert.False(t, changed, "a confirmed op never fails")
}

func TestTable_ApplyRaw(t *testing.T) {
	tbl := pending.New(time.Second)
	_, _ = tbl.Add("tmp-1", "c1", "a", t0)

	raw, err := json.Marshal(models.NewMessageEvent(models.MessageView{ID: "m1", Content: "a"}, "tmp-1"))
	require.NoError(t, err)
	op, changed, err := tbl.ApplyRaw(raw)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "m1", op.MessageID)

	_, changed, err = tbl.ApplyRaw([]byte(`{"type":"user_typing","data":{}}`))
	assert.NoError(t, err)
	assert.False(t, changed)

	_, _, err = tbl.ApplyRaw([]byte(`{`))
	assert.Error(t, err)
}

func TestTable_Remove(t *testing.T) {
	tbl := pending.New(time.Second)
	_, _ = tbl.Add("tmp-1", "c1", "a", t0)
	tbl.Remove("tmp-1")
	_, ok := tbl.Get("tmp-1")
	assert.False(t, ok)
}
