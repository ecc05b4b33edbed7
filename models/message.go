package models

import "time"

// Message is immutable once stored. Seq numbers messages of one conversation
// from 1 upward and breaks ties between equal CreatedAt values.
type Message struct {
	MessageID      string    `gorm:"primaryKey;type:varchar(36)" json:"message_id" bson:"_id"`
	ConversationID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_messages_conversation_seq,priority:1" json:"conversation_id" bson:"conversation_id"`
	Seq            int64     `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2" json:"seq" bson:"seq"`
	SenderID       string    `gorm:"type:varchar(36);index;not null" json:"sender_id" bson:"sender_id"`
	Text           string    `gorm:"type:text;not null" json:"text" bson:"text"`
	CreatedAt      time.Time `gorm:"index" json:"created_at" bson:"created_at"`
}

// MessageView is a message with its sender resolved.
type MessageView struct {
	MessageID      string      `json:"message_id"`
	ConversationID string      `json:"conversation_id"`
	Seq            int64       `json:"seq"`
	Sender         UserSummary `json:"sender"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"created_at"`
}
