package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.ClientEvent
	}{
		{"join", `{"type":"join_conversation","data":{"conversationId":"c1"}}`, models.JoinConversation{ConversationID: "c1"}},
		{"leave", `{"type":"leave_conversation","data":{"conversationId":"c1"}}`, models.LeaveConversation{ConversationID: "c1"}},
		{"send", `{"type":"send_message","data":{"conversationId":"c1","content":"hi","tempId":"t1"}}`, models.SendMessage{ConversationID: "c1", Content: "hi", TempID: "t1"}},
		{"typing start", `{"type":"typing_start","data":{"conversationId":"c1"}}`, models.TypingStart{ConversationID: "c1"}},
		{"typing stop", `{"type":"typing_stop","data":{"conversationId":"c1"}}`, models.TypingStop{ConversationID: "c1"}},
		{"mark read", `{"type":"mark_messages_read","data":{"conversationId":"c1"}}`, models.MarkMessagesRead{ConversationID: "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParseClientEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClientEvent_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing type":     `{"data":{"conversationId":"c1"}}`,
		"unknown type":     `{"type":"delete_everything","data":{}}`,
		"missing data":     `{"type":"join_conversation"}`,
		"missing conv id":  `{"type":"typing_start","data":{}}`,
		"blank conv id":    `{"type":"typing_start","data":{"conversationId":"  "}}`,
		"wrong field type": `{"type":"send_message","data":{"conversationId":7}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := models.ParseClientEvent([]byte(raw))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestServerEvent_Envelope(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := json.Marshal(models.MessagesReadEvent("c1", "bob", at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"messages_read","data":{"conversationId":"c1","readBy":"bob","readAt":"2024-01-02T03:04:05Z"}}`, string(b))
}

func TestNewMessageEvent_FlattensView(t *testing.T) {
	m := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "a", Content: "hi"}
	m.Prepare()

	b, err := json.Marshal(models.NewMessageEvent(models.NewMessageView(m, "b"), "tmp-1"))
	require.NoError(t, err)

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "new_message", decoded.Type)
	assert.Equal(t, "m1", decoded.Data["id"])
	assert.Equal(t, "tmp-1", decoded.Data["tempId"])
	assert.Equal(t, []any{}, decoded.Data["readBy"])
}

func TestMessageErrorEvent_CarriesKind(t *testing.T) {
	evt := models.MessageErrorEvent("c1", "tmp-1", apperr.AccessDenied("blocked"))
	payload, ok := evt.Data.(models.MessageErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "access_denied", payload.Kind)
	assert.Equal(t, "tmp-1", payload.TempID)

	evt = models.MessageErrorEvent("c1", "", errors.New("disk full"))
	payload = evt.Data.(models.MessageErrorPayload)
	assert.Equal(t, string(apperr.KindTransient), payload.Kind)
}
