package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ReadReceipt records that UserID read a message. Postgres keeps receipts in
// message_reads keyed by (message_id, user_id); mongo embeds them in the message.
type ReadReceipt struct {
	MessageID string    `gorm:"primaryKey;type:text" json:"-" bson:"-"`
	UserID    string    `gorm:"primaryKey;type:text" json:"user" bson:"userId"`
	ReadAt    time.Time `gorm:"not null" json:"readAt" bson:"readAt"`
}

func (ReadReceipt) TableName() string { return "message_reads" }

// Message is immutable apart from the read receipts and the soft-delete markers.
type Message struct {
	ID               string         `gorm:"primaryKey;type:text" json:"id" bson:"_id"`
	ConversationID   string         `gorm:"type:text;not null;index:idx_messages_conversation_created,priority:1;uniqueIndex:idx_messages_sender_client,priority:2" json:"conversationId" bson:"conversationId"`
	SenderID         string         `gorm:"type:text;not null;uniqueIndex:idx_messages_sender_client,priority:1" json:"senderId" bson:"senderId"`
	Content          string         `gorm:"type:text;not null" json:"content" bson:"content"`
	CreatedAt        time.Time      `gorm:"index:idx_messages_conversation_created,priority:2,sort:desc" json:"createdAt" bson:"createdAt"`
	IsRequestMessage bool           `json:"isRequestMessage" bson:"isRequestMessage"`
	IsDeleted        bool           `json:"isDeleted" bson:"isDeleted"`
	DeletedFor       pq.StringArray `gorm:"type:text[];not null" json:"-" bson:"deletedFor"`
	ReadBy           []ReadReceipt  `gorm:"foreignKey:MessageID" json:"readBy" bson:"readBy"`
	ClientMessageID  *string        `gorm:"type:text;uniqueIndex:idx_messages_sender_client,priority:3" json:"clientMessageId,omitempty" bson:"clientMessageId,omitempty"`
}

// Prepare fills the ID and makes the collections non-nil so that every backend
// stores readBy and deletedFor as empty collections rather than null.
func (m *Message) Prepare() {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.ReadBy == nil {
		m.ReadBy = []ReadReceipt{}
	}
	if m.DeletedFor == nil {
		m.DeletedFor = pq.StringArray{}
	}
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	m.Prepare()
	return
}

// IsRead reports whether anyone has read the message.
func (m *Message) IsRead() bool {
	return m != nil && len(m.ReadBy) > 0
}

// IsReadBy reports whether userID has a receipt on the message.
func (m *Message) IsReadBy(userID string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// IsDeliveredToOther reports whether someone other than the sender has a receipt.
func (m *Message) IsDeliveredToOther() bool {
	if m == nil {
		return false
	}
	for _, r := range m.ReadBy {
		if r.UserID != m.SenderID {
			return true
		}
	}
	return false
}

func (m *Message) IsDeletedFor(userID string) bool {
	return m != nil && contains(m.DeletedFor, userID)
}

// DeletedContent replaces the text of messages deleted for everyone.
const DeletedContent = "This message was deleted"

// MessageView is the client projection of a message as seen by one viewer.
type MessageView struct {
	ID               string        `json:"id"`
	ConversationID   string        `json:"conversationId"`
	SenderID         string        `json:"senderId"`
	Content          string        `json:"content"`
	CreatedAt        time.Time     `json:"createdAt"`
	IsRequestMessage bool          `json:"isRequestMessage"`
	IsDeleted        bool          `json:"isDeleted"`
	ReadBy           []ReadReceipt `json:"readBy"`
	IsRead           bool          `json:"isRead"`
	IsReadByOther    bool          `json:"isReadByOther"`
	IsDelivered      bool          `json:"isDelivered"`
	ClientMessageID  string        `json:"clientMessageId,omitempty"`
}

// NewMessageView derives the read state relative to otherID, the viewer's peer.
func NewMessageView(m *Message, otherID string) MessageView {
	readBy := make([]ReadReceipt, len(m.ReadBy))
	copy(readBy, m.ReadBy)

	v := MessageView{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		SenderID:         m.SenderID,
		Content:          m.Content,
		CreatedAt:        m.CreatedAt,
		IsRequestMessage: m.IsRequestMessage,
		IsDeleted:        m.IsDeleted,
		ReadBy:           readBy,
		IsRead:           m.IsRead(),
		IsReadByOther:    otherID != "" && m.IsReadBy(otherID),
		IsDelivered:      m.IsDeliveredToOther(),
	}
	if m.ClientMessageID != nil {
		v.ClientMessageID = *m.ClientMessageID
	}
	if m.IsDeleted {
		v.Content = DeletedContent
	}
	return v
}

// WithReadBy returns a copy of v whose receipts are replaced and read state recomputed.
func (v MessageView) WithReadBy(receipts []ReadReceipt, otherID string) MessageView {
	m := Message{SenderID: v.SenderID, ReadBy: receipts}
	if m.ReadBy == nil {
		m.ReadBy = []ReadReceipt{}
	}
	v.ReadBy = m.ReadBy
	v.IsRead = m.IsRead()
	v.IsReadByOther = otherID != "" && m.IsReadBy(otherID)
	v.IsDelivered = m.IsDeliveredToOther()
	return v
}
