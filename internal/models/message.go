package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindCircle  ConversationKind = "circle"
)

// Message is append-only. IsRead and the deletion set are its only mutable
// state.
type Message struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	SenderID   uuid.UUID        `gorm:"type:uuid;not null;index:idx_messages_pair"`
	Content    string           `gorm:"not null"`
	Kind       ConversationKind `gorm:"type:varchar(16);not null;index"`
	ReceiverID *uuid.UUID       `gorm:"type:uuid;index:idx_messages_pair"`
	CircleID   *uuid.UUID       `gorm:"type:uuid;index"`
	ReplyToID  *uuid.UUID       `gorm:"type:uuid;index"`
	IsRead     bool             `gorm:"not null;default:false;index"`
	CreatedAt  time.Time        `gorm:"not null;index"`

	Sender     User              `gorm:"foreignKey:SenderID"`
	ReplyTo    *Message          `gorm:"foreignKey:ReplyToID"`
	DeletedFor []MessageDeletion `gorm:"foreignKey:MessageID"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Key returns the conversation the message belongs to.
func (m *Message) Key() ConversationKey {
	if m.Kind == KindCircle && m.CircleID != nil {
		return CircleKey(*m.CircleID)
	}
	var receiver uuid.UUID
	if m.ReceiverID != nil {
		receiver = *m.ReceiverID
	}
	return PrivateKey(m.SenderID, receiver)
}

// IsParticipant reports whether userID is the sender or receiver of a
// private message.
func (m *Message) IsParticipant(userID uuid.UUID) bool {
	if m.SenderID == userID {
		return true
	}
	return m.ReceiverID != nil && *m.ReceiverID == userID
}

// Counterpart returns the other side of a private message as seen by userID.
func (m *Message) Counterpart(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID && m.ReceiverID != nil {
		return *m.ReceiverID
	}
	return m.SenderID
}

// MessageDeletion hides one message from one viewer.
type MessageDeletion struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time
}
