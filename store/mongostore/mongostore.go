// Package mongostore persists chat state in MongoDB. Appends run in a
// multi-document transaction, so the server must be a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"alumni-chat/models"
	"alumni-chat/store"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type Store struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Connect dials uri, checks the primary and ensures indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:        client,
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}
}

// EnsureIndexes creates the unique indexes the store relies on for
// duplicate prevention and ordering.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: users indexes: %w", err)
	}

	_, err = s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participant_a", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "participant_b", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: conversations indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: messages indexes: %w", err)
	}
	return nil
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
	ts := now()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrEmailTaken
	}
	if err != nil {
		return storageErr("create user", err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("find user", err)
	}
	return &user, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, storageErr("find users", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, storageErr("decode users", err)
	}
	return users, nil
}

// GetOrCreateConversation upserts on the unique pair key. Two racing upserts
// can both miss and one then fails on the index, so a duplicate key error
// falls back to reading the winner.
func (s *Store) GetOrCreateConversation(ctx context.Context, requesterID, recipientID string) (*models.Conversation, bool, error) {
	if requesterID == recipientID {
		return nil, false, models.ErrSelfConversation
	}

	ts := now()
	key := models.PairKey(requesterID, recipientID)
	candidateID := uuid.NewString()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":              candidateID,
			"participant_a":    requesterID,
			"participant_b":    recipientID,
			"last_message_id":  nil,
			"last_message_seq": int64(0),
			"message_count":    int64(0),
			"created_at":       ts,
			"updated_at":       ts,
		},
		"$set": bson.M{"is_active": true},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv models.Conversation
	err := s.conversations.FindOneAndUpdate(ctx, bson.M{"pair_key": key}, update, opts).Decode(&conv)
	if mongo.IsDuplicateKeyError(err) {
		err = s.conversations.FindOneAndUpdate(ctx, bson.M{"pair_key": key}, bson.M{"$set": bson.M{"is_active": true}},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&conv)
	}
	if err != nil {
		return nil, false, storageErr("upsert conversation", err)
	}
	return &conv, conv.ConversationID == candidateID, nil
}

func (s *Store) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrConversationNotFound
	}
	if err != nil {
		return nil, storageErr("find conversation", err)
	}
	return &conv, nil
}

func participantFilter(userID string) bson.A {
	return bson.A{
		bson.M{"participant_a": userID},
		bson.M{"participant_b": userID},
	}
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	filter := bson.M{
		"$or":             participantFilter(userID),
		"is_active":       true,
		"last_message_id": bson.M{"$ne": nil},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "last_message_seq", Value: -1}})

	cursor, err := s.conversations.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, storageErr("decode conversations", err)
	}
	return convs, nil
}

func (s *Store) SetConversationActive(ctx context.Context, id string, active bool) error {
	res, err := s.conversations.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"is_active": active}})
	if err != nil {
		return storageErr("update conversation", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrConversationNotFound
	}
	return nil
}

// AppendMessage allocates the sequence number with $inc, inserts the message
// and moves the pointer inside one transaction.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, *models.Conversation, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, nil, storageErr("start session", err)
	}
	defer session.EndSession(ctx)

	var (
		msg  models.Message
		conv models.Conversation
	)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		filter := bson.M{"_id": conversationID, "$or": participantFilter(senderID)}
		err := s.conversations.FindOneAndUpdate(sc, filter,
			bson.M{"$inc": bson.M{"message_count": int64(1)}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&conv)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.missingOrForbidden(sc, conversationID)
		}
		if err != nil {
			return nil, storageErr("allocate sequence", err)
		}

		ts := now()
		msg = models.Message{
			MessageID:      uuid.NewString(),
			ConversationID: conversationID,
			Seq:            conv.MessageCount,
			SenderID:       senderID,
			Text:           text,
			CreatedAt:      ts,
		}
		if _, err := s.messages.InsertOne(sc, msg); err != nil {
			return nil, storageErr("insert message", err)
		}

		_, err = s.conversations.UpdateOne(sc,
			bson.M{"_id": conversationID, "last_message_seq": bson.M{"$lt": msg.Seq}},
			bson.M{"$set": bson.M{
				"last_message_id":  msg.MessageID,
				"last_message_seq": msg.Seq,
				"updated_at":       ts,
			}},
		)
		if err != nil {
			return nil, storageErr("update latest message", err)
		}

		lastID := msg.MessageID
		conv.LastMessageID = &lastID
		conv.LastMessageSeq = msg.Seq
		conv.UpdatedAt = ts
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &msg, &conv, nil
}

func (s *Store) missingOrForbidden(ctx context.Context, conversationID string) error {
	n, err := s.conversations.CountDocuments(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return storageErr("find conversation", err)
	}
	if n == 0 {
		return models.ErrConversationNotFound
	}
	return models.ErrNotParticipant
}

func (s *Store) ListMessages(ctx context.Context, conversationID, requesterID string) ([]models.Message, error) {
	conv, err := s.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, models.ErrNotParticipant
	}

	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, storageErr("decode messages", err)
	}
	return msgs, nil
}

func (s *Store) FindMessagesByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.messages.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, storageErr("find messages", err)
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, storageErr("decode messages", err)
	}
	return msgs, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
