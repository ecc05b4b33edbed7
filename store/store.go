package store

import (
	"context"
	"errors"

	"alumni-chat/models"
)

// ErrStorage wraps driver failures that are not domain errors.
var ErrStorage = errors.New("storage failure")

// UserRepository is the read side of the user directory plus account creation.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// ConversationRepository owns conversation identity and membership.
type ConversationRepository interface {
	// GetOrCreateConversation returns the conversation for the unordered pair,
	// creating it when absent. created reports whether this call inserted it.
	// An inactive conversation is reactivated.
	GetOrCreateConversation(ctx context.Context, requesterID, recipientID string) (conv *models.Conversation, created bool, err error)
	FindConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListConversationsForUser returns active conversations of userID that
	// have at least one message, most recently updated first.
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	SetConversationActive(ctx context.Context, id string, active bool) error
}

// MessageRepository owns the append-only message log.
type MessageRepository interface {
	// AppendMessage stores a message and points its conversation at it in one
	// atomic step. It returns the message and the updated conversation.
	AppendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, *models.Conversation, error)
	// ListMessages returns the conversation's messages oldest first, after
	// checking that requesterID participates.
	ListMessages(ctx context.Context, conversationID, requesterID string) ([]models.Message, error)
	FindMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error)
}

// Store is the persistence port used by the services.
type Store interface {
	UserRepository
	ConversationRepository
	MessageRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
