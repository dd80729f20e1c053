package models

import (
	"encoding/json"
	"strings"
	"time"

	"socialdm/backend/internal/apperr"
)

// EventType names an event on the realtime channel. Every frame is {"type": ..., "data": ...}.
type EventType string

// Client → server.
const (
	EventJoinConversation  EventType = "join_conversation"
	EventLeaveConversation EventType = "leave_conversation"
	EventSendMessage       EventType = "send_message"
	EventTypingStart       EventType = "typing_start"
	EventTypingStop        EventType = "typing_stop"
	EventMarkMessagesRead  EventType = "mark_messages_read"
)

// Server → client.
const (
	EventNewMessage       EventType = "new_message"
	EventMessageError     EventType = "message_error"
	EventUserTyping       EventType = "user_typing"
	EventUserStopTyping   EventType = "user_stop_typing"
	EventMessagesRead     EventType = "messages_read"
	EventUserStatusChange EventType = "user_status_change"
	EventError            EventType = "error"
)

// ClientEvent is one of JoinConversation, LeaveConversation, SendMessage,
// TypingStart, TypingStop or MarkMessagesRead.
type ClientEvent interface {
	EventType() EventType
	Conversation() string
}

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId"`
}

type SendMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	TempID         string `json:"tempId,omitempty"`
}

type TypingStart struct {
	ConversationID string `json:"conversationId"`
}

type TypingStop struct {
	ConversationID string `json:"conversationId"`
}

type MarkMessagesRead struct {
	ConversationID string `json:"conversationId"`
}

func (JoinConversation) EventType() EventType  { return EventJoinConversation }
func (LeaveConversation) EventType() EventType { return EventLeaveConversation }
func (SendMessage) EventType() EventType       { return EventSendMessage }
func (TypingStart) EventType() EventType       { return EventTypingStart }
func (TypingStop) EventType() EventType        { return EventTypingStop }
func (MarkMessagesRead) EventType() EventType  { return EventMarkMessagesRead }

func (e JoinConversation) Conversation() string  { return e.ConversationID }
func (e LeaveConversation) Conversation() string { return e.ConversationID }
func (e SendMessage) Conversation() string       { return e.ConversationID }
func (e TypingStart) Conversation() string       { return e.ConversationID }
func (e TypingStop) Conversation() string        { return e.ConversationID }
func (e MarkMessagesRead) Conversation() string  { return e.ConversationID }

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseClientEvent decodes and validates a client frame. Unknown types and
// missing conversation ids are validation errors.
func ParseClientEvent(raw []byte) (ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Validation("malformed event")
	}

	var evt ClientEvent
	var err error
	switch env.Type {
	case EventJoinConversation:
		evt, err = decodeInto[JoinConversation](env.Data)
	case EventLeaveConversation:
		evt, err = decodeInto[LeaveConversation](env.Data)
	case EventSendMessage:
		evt, err = decodeInto[SendMessage](env.Data)
	case EventTypingStart:
		evt, err = decodeInto[TypingStart](env.Data)
	case EventTypingStop:
		evt, err = decodeInto[TypingStop](env.Data)
	case EventMarkMessagesRead:
		evt, err = decodeInto[MarkMessagesRead](env.Data)
	case "":
		return nil, apperr.Validation("event type is required")
	default:
		return nil, apperr.Validation("unknown event type " + string(env.Type))
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(evt.Conversation()) == "" {
		return nil, apperr.Validation("conversationId is required")
	}
	return evt, nil
}

func decodeInto[T ClientEvent](data json.RawMessage) (ClientEvent, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return nil, apperr.Validation("event data is required")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperr.Validation("malformed event data")
	}
	return v, nil
}

// ServerEvent is an outbound frame.
type ServerEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type NewMessagePayload struct {
	MessageView
	TempID string `json:"tempId,omitempty"`
}

type MessageErrorPayload struct {
	ConversationID string `json:"conversationId"`
	TempID         string `json:"tempId,omitempty"`
	Error          string `json:"error"`
	Kind           string `json:"kind"`
}

type TypingPayload struct {
	ConversationID string      `json:"conversationId"`
	UserID         string      `json:"userId"`
	User           UserSummary `json:"user"`
}

type MessagesReadPayload struct {
	ConversationID string    `json:"conversationId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

type UserStatusPayload struct {
	UserID     string    `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

type ErrorPayload struct {
	Event          EventType `json:"event,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Error          string    `json:"error"`
	Kind           string    `json:"kind"`
}

func NewMessageEvent(v MessageView, tempID string) ServerEvent {
	return ServerEvent{Type: EventNewMessage, Data: NewMessagePayload{MessageView: v, TempID: tempID}}
}

func MessageErrorEvent(conversationID, tempID string, err error) ServerEvent {
	ae := apperr.As(err)
	return ServerEvent{Type: EventMessageError, Data: MessageErrorPayload{
		ConversationID: conversationID,
		TempID:         tempID,
		Error:          ae.Message,
		Kind:           string(ae.Kind),
	}}
}

func TypingEvent(typing bool, conversationID string, user UserSummary) ServerEvent {
	t := EventUserStopTyping
	if typing {
		t = EventUserTyping
	}
	return ServerEvent{Type: t, Data: TypingPayload{ConversationID: conversationID, UserID: user.ID, User: user}}
}

func MessagesReadEvent(conversationID, readerID string, at time.Time) ServerEvent {
	return ServerEvent{Type: EventMessagesRead, Data: MessagesReadPayload{ConversationID: conversationID, ReadBy: readerID, ReadAt: at}}
}

func StatusEvent(userID string, online bool, lastActive time.Time) ServerEvent {
	return ServerEvent{Type: EventUserStatusChange, Data: UserStatusPayload{UserID: userID, IsOnline: online, LastActive: lastActive}}
}

func ErrorEvent(source EventType, conversationID string, err error) ServerEvent {
	ae := apperr.As(err)
	return ServerEvent{Type: EventError, Data: ErrorPayload{
		Event:          source,
		ConversationID: conversationID,
		Error:          ae.Message,
		Kind:           string(ae.Kind),
	}}
}
