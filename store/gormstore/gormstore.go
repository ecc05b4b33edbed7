// Package gormstore persists chat state in MySQL or PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alumni-chat/models"
	"alumni-chat/store"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrStorage, err)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(user.Email)

	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrEmailTaken
	}
	if err != nil {
		return storageErr("create user", err)
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("find user", err)
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("find user by email", err)
	}
	return &user, nil
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, storageErr("find users", err)
	}
	return users, nil
}

// GetOrCreateConversation inserts with ON CONFLICT DO NOTHING on pair_key and
// reloads, so concurrent first contacts converge on a single row.
func (s *Store) GetOrCreateConversation(ctx context.Context, requesterID, recipientID string) (*models.Conversation, bool, error) {
	if requesterID == recipientID {
		return nil, false, models.ErrSelfConversation
	}

	ts := now()
	key := models.PairKey(requesterID, recipientID)
	candidate := models.Conversation{
		ConversationID: uuid.NewString(),
		ParticipantA:   requesterID,
		ParticipantB:   recipientID,
		PairKey:        key,
		IsActive:       true,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).
		Create(&candidate)
	if res.Error != nil {
		return nil, false, storageErr("create conversation", res.Error)
	}

	var conv models.Conversation
	if err := s.db.WithContext(ctx).Where("pair_key = ?", key).First(&conv).Error; err != nil {
		return nil, false, storageErr("reload conversation", err)
	}

	if !conv.IsActive {
		err := s.db.WithContext(ctx).
			Model(&models.Conversation{}).
			Where("conversation_id = ?", conv.ConversationID).
			UpdateColumn("is_active", true).Error
		if err != nil {
			return nil, false, storageErr("reactivate conversation", err)
		}
		conv.IsActive = true
	}

	return &conv, conv.ConversationID == candidate.ConversationID, nil
}

func (s *Store) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("conversation_id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrConversationNotFound
	}
	if err != nil {
		return nil, storageErr("find conversation", err)
	}
	return &conv, nil
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("(participant_a = ? OR participant_b = ?) AND is_active = ? AND last_message_id IS NOT NULL", userID, userID, true).
		Order("updated_at DESC").
		Order("last_message_seq DESC").
		Find(&convs).Error
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	return convs, nil
}

func (s *Store) SetConversationActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("conversation_id = ?", id).
		UpdateColumn("is_active", active)
	if res.Error != nil {
		return storageErr("update conversation", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindConversation(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// AppendMessage locks the conversation row, numbers the message from the
// locked counter and moves the latest-message pointer in the same transaction.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, *models.Conversation, error) {
	var (
		msg  models.Message
		conv models.Conversation
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ?", conversationID).
			First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrConversationNotFound
		}
		if err != nil {
			return storageErr("lock conversation", err)
		}
		if !conv.HasParticipant(senderID) {
			return models.ErrNotParticipant
		}

		ts := now()
		msg = models.Message{
			MessageID:      uuid.NewString(),
			ConversationID: conversationID,
			Seq:            conv.MessageCount + 1,
			SenderID:       senderID,
			Text:           text,
			CreatedAt:      ts,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return storageErr("insert message", err)
		}

		err = tx.Model(&models.Conversation{}).
			Where("conversation_id = ?", conversationID).
			UpdateColumns(map[string]any{
				"last_message_id":  msg.MessageID,
				"last_message_seq": msg.Seq,
				"message_count":    msg.Seq,
				"updated_at":       ts,
			}).Error
		if err != nil {
			return storageErr("update latest message", err)
		}

		lastID := msg.MessageID
		conv.LastMessageID = &lastID
		conv.LastMessageSeq = msg.Seq
		conv.MessageCount = msg.Seq
		conv.UpdatedAt = ts
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &msg, &conv, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID, requesterID string) ([]models.Message, error) {
	conv, err := s.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, models.ErrNotParticipant
	}

	var msgs []models.Message
	err = s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

func (s *Store) FindMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("message_id IN ?", ids).Find(&msgs).Error; err != nil {
		return nil, storageErr("find messages", err)
	}
	return msgs, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
