package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Conversation is the peer relationship between exactly two users.
// Participants are stored sorted so that PairKey is unique per unordered pair.
type Conversation struct {
	ID               string         `gorm:"primaryKey;type:text" json:"id" bson:"_id"`
	Participants     pq.StringArray `gorm:"type:text[];not null;index:idx_conversations_participants,type:gin" json:"participants" bson:"participants"`
	PairKey          string         `gorm:"type:text;not null;uniqueIndex" json:"-" bson:"pairKey"`
	LastMessageID    *string        `gorm:"type:text" json:"lastMessageId,omitempty" bson:"lastMessageId,omitempty"`
	LastActivity     time.Time      `gorm:"index" json:"lastActivity" bson:"lastActivity"`
	IsMessageRequest bool           `json:"isMessageRequest" bson:"isMessageRequest"`
	RequestFrom      string         `gorm:"type:text" json:"requestFrom" bson:"requestFrom"`
	RequestAccepted  bool           `json:"requestAccepted" bson:"requestAccepted"`
	CreatedAt        time.Time      `json:"createdAt" bson:"createdAt"`
}

// PairKey is the order-independent identity of a participant pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// NewConversation builds an unsaved conversation between initiator and target.
// A conversation the initiator may not open freely becomes a pending message request.
func NewConversation(initiator, target string, canMessageFreely bool, now time.Time) *Conversation {
	a, b := initiator, target
	if b < a {
		a, b = b, a
	}
	return &Conversation{
		ID:               uuid.New().String(),
		Participants:     pq.StringArray{a, b},
		PairKey:          PairKey(initiator, target),
		LastActivity:     now,
		IsMessageRequest: !canMessageFreely,
		RequestFrom:      initiator,
		RequestAccepted:  canMessageFreely,
		CreatedAt:        now,
	}
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.PairKey == "" && len(c.Participants) == 2 {
		c.PairKey = PairKey(c.Participants[0], c.Participants[1])
	}
	return
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c != nil && contains(c.Participants, userID)
}

// OtherParticipant returns the participant that is not userID, or "" if userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// IsPendingRequest reports whether the conversation is an unaccepted message request.
func (c *Conversation) IsPendingRequest() bool {
	return c.IsMessageRequest && !c.RequestAccepted
}

// ConversationView is the API projection of a conversation.
type ConversationView struct {
	ID               string        `json:"id"`
	Participants     []UserSummary `json:"participants"`
	LastMessage      *MessageView  `json:"lastMessage,omitempty"`
	LastActivity     time.Time     `json:"lastActivity"`
	IsMessageRequest bool          `json:"isMessageRequest"`
	RequestFrom      string        `json:"requestFrom"`
	RequestAccepted  bool          `json:"requestAccepted"`
	IsRequest        bool          `json:"isRequest"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// NewConversationView resolves participants through users; unknown ids become bare summaries.
func NewConversationView(c *Conversation, users map[string]*User, last *MessageView) ConversationView {
	participants := make([]UserSummary, 0, len(c.Participants))
	for _, id := range c.Participants {
		if u, ok := users[id]; ok {
			participants = append(participants, u.Summary())
			continue
		}
		participants = append(participants, UserSummary{ID: id})
	}
	return ConversationView{
		ID:               c.ID,
		Participants:     participants,
		LastMessage:      last,
		LastActivity:     c.LastActivity,
		IsMessageRequest: c.IsMessageRequest,
		RequestFrom:      c.RequestFrom,
		RequestAccepted:  c.RequestAccepted,
		IsRequest:        c.IsPendingRequest(),
		CreatedAt:        c.CreatedAt,
	}
}
