package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageVideo, MessageFile:
		return true
	}
	return false
}

type Message struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string      `gorm:"type:varchar(160);not null;index:idx_message_conversation_created,priority:1" json:"conversationId"`
	SenderID       string      `gorm:"type:varchar(64);not null" json:"senderId"`
	SenderRole     Role        `gorm:"type:varchar(16);not null" json:"senderRole"`
	ReceiverID     string      `gorm:"type:varchar(64);not null;index" json:"receiverId"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Type           MessageType `gorm:"type:varchar(16);not null;default:'text'" json:"type"`
	MediaKey       string      `gorm:"type:text" json:"mediaKey,omitempty"`
	MediaURL       string      `gorm:"-" json:"mediaUrl,omitempty"`
	Delivered      bool        `gorm:"not null;default:false" json:"delivered"`
	DeliveredAt    *time.Time  `json:"deliveredAt,omitempty"`
	Read           bool        `gorm:"not null;default:false" json:"read"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	Deleted        bool        `gorm:"not null;default:false" json:"-"`
	CreatedAt      time.Time   `gorm:"index:idx_message_conversation_created,priority:2" json:"createdAt"`
}
