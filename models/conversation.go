package models

import "time"

// Conversation is a one-to-one thread. ParticipantA is the user who opened it.
// PairKey holds both participants in sorted order and is unique, so a pair can
// never own two conversations.
type Conversation struct {
	ConversationID string    `gorm:"primaryKey;type:varchar(36)" json:"conversation_id" bson:"_id"`
	ParticipantA   string    `gorm:"type:varchar(36);index;not null" json:"participant_a" bson:"participant_a"`
	ParticipantB   string    `gorm:"type:varchar(36);index;not null" json:"participant_b" bson:"participant_b"`
	PairKey        string    `gorm:"type:varchar(80);uniqueIndex;not null" json:"-" bson:"pair_key"`
	LastMessageID  *string   `gorm:"type:varchar(36)" json:"last_message_id" bson:"last_message_id"`
	LastMessageSeq int64     `gorm:"not null;default:0" json:"-" bson:"last_message_seq"`
	MessageCount   int64     `gorm:"not null;default:0" json:"message_count" bson:"message_count"`
	IsActive       bool      `gorm:"not null;index" json:"is_active" bson:"is_active"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `gorm:"index" json:"updated_at" bson:"updated_at"`
}

// Participants returns both participant ids in creation order.
func (c *Conversation) Participants() []string {
	return []string{c.ParticipantA, c.ParticipantB}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// PairKey normalises an unordered pair of user ids.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// ConversationView is a conversation with participants and latest message resolved.
type ConversationView struct {
	ConversationID string        `json:"conversation_id"`
	Participants   []UserSummary `json:"participants"`
	LastMessage    *MessageView  `json:"last_message"`
	MessageCount   int64         `json:"message_count"`
	IsActive       bool          `json:"is_active"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
