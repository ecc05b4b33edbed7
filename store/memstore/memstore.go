// Package memstore keeps chat state in process memory. It backs tests and the
// memory store driver used for local development.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alumni-chat/models"
	"alumni-chat/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu            sync.RWMutex
	users         map[string]models.User
	emails        map[string]string
	conversations map[string]models.Conversation
	pairs         map[string]string
	messages      map[string][]models.Message
	messageIndex  map[string]models.Message
	now           func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[string]models.User),
		emails:        make(map[string]string),
		conversations: make(map[string]models.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string][]models.Message),
		messageIndex:  make(map[string]models.Message),
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.emails[email]; ok {
		return models.ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	s.emails[email] = user.ID
	return nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) FindUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (s *Store) GetOrCreateConversation(_ context.Context, requesterID, recipientID string) (*models.Conversation, bool, error) {
	if requesterID == recipientID {
		return nil, false, models.ErrSelfConversation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.PairKey(requesterID, recipientID)
	if id, ok := s.pairs[key]; ok {
		conv := s.conversations[id]
		if !conv.IsActive {
			conv.IsActive = true
			s.conversations[id] = conv
		}
		return cloneConversation(conv), false, nil
	}

	now := s.now()
	conv := models.Conversation{
		ConversationID: uuid.NewString(),
		ParticipantA:   requesterID,
		ParticipantB:   recipientID,
		PairKey:        key,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.conversations[conv.ConversationID] = conv
	s.pairs[key] = conv.ConversationID
	return cloneConversation(conv), true, nil
}

func (s *Store) FindConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *Store) ListConversationsForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) && conv.IsActive && conv.LastMessageID != nil {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].LastMessageSeq > out[j].LastMessageSeq
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) SetConversationActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.ErrConversationNotFound
	}
	conv.IsActive = active
	s.conversations[id] = conv
	return nil
}

func (s *Store) AppendMessage(_ context.Context, conversationID, senderID, text string) (*models.Message, *models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil, models.ErrConversationNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, nil, models.ErrNotParticipant
	}

	now := s.now()
	msg := models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Seq:            conv.MessageCount + 1,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	s.messageIndex[msg.MessageID] = msg

	lastID := msg.MessageID
	conv.LastMessageID = &lastID
	conv.LastMessageSeq = msg.Seq
	conv.MessageCount = msg.Seq
	conv.UpdatedAt = now
	s.conversations[conversationID] = conv

	return &msg, cloneConversation(conv), nil
}

func (s *Store) ListMessages(_ context.Context, conversationID, requesterID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	if !conv.HasParticipant(requesterID) {
		return nil, models.ErrNotParticipant
	}
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) FindMessagesByIDs(_ context.Context, ids []string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messageIndex[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

// cloneConversation copies conv so callers never share LastMessageID with the map.
func cloneConversation(conv models.Conversation) *models.Conversation {
	if conv.LastMessageID != nil {
		id := *conv.LastMessageID
		conv.LastMessageID = &id
	}
	return &conv
}
