package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"alumni-chat/metrics"
	"alumni-chat/models"
	"alumni-chat/store"
)

// ChatService implements conversations and messaging on top of a Store and
// pushes changes through a Broadcaster.
type ChatService struct {
	store       store.Store
	broadcaster Broadcaster
	locks       *keyedMutex
	maxLength   int
	tracer      trace.Tracer
	log         zerolog.Logger
}

func NewChatService(st store.Store, broadcaster Broadcaster, maxLength int, log zerolog.Logger) *ChatService {
	return &ChatService{
		store:       st,
		broadcaster: broadcaster,
		locks:       newKeyedMutex(),
		maxLength:   maxLength,
		tracer:      otel.Tracer("alumni-chat/services"),
		log:         log.With().Str("component", "chat_service").Logger(),
	}
}

func (s *ChatService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ChatService."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// GetOrCreateConversation opens the conversation between requester and
// recipient, creating it on first contact.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, requesterID, recipientID string) (view *models.ConversationView, err error) {
	ctx, span := s.startSpan(ctx, "GetOrCreateConversation",
		attribute.String("user.id", requesterID), attribute.String("recipient.id", recipientID))
	defer func() { endSpan(span, err) }()

	if requesterID == recipientID {
		return nil, models.ErrSelfConversation
	}
	if _, err := s.store.FindUserByID(ctx, recipientID); err != nil {
		return nil, err
	}

	conv, created, err := s.store.GetOrCreateConversation(ctx, requesterID, recipientID)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.ConversationsCreated.Inc()
		s.log.Info().
			Str("conversation_id", conv.ConversationID).
			Str("user_id", requesterID).
			Msg("conversation created")
	}

	views, err := s.populateConversations(ctx, []models.Conversation{*conv})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListConversations returns the user's active conversations that have at
// least one message, most recently updated first.
func (s *ChatService) ListConversations(ctx context.Context, userID string) (views []models.ConversationView, err error) {
	ctx, span := s.startSpan(ctx, "ListConversations", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	convs, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	uniq := convs[:0]
	seen := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		if _, ok := seen[c.ConversationID]; ok {
			continue
		}
		seen[c.ConversationID] = struct{}{}
		uniq = append(uniq, c)
	}

	return s.populateConversations(ctx, uniq)
}

// ListMessages returns the conversation history oldest first.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, requesterID string) (views []models.MessageView, err error) {
	ctx, span := s.startSpan(ctx, "ListMessages",
		attribute.String("conversation.id", conversationID), attribute.String("user.id", requesterID))
	defer func() { endSpan(span, err) }()

	msgs, err := s.store.ListMessages(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	senders := make([]string, 0, len(msgs))
	for i := range msgs {
		senders = append(senders, msgs[i].SenderID)
	}
	p, err := s.loadProfiles(ctx, senders)
	if err != nil {
		return nil, err
	}

	views = make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, messageView(&msgs[i], p))
	}
	return views, nil
}

// SendMessage appends text to the conversation and fans the result out.
// Appends and broadcasts of one conversation are serialised so events leave
// this instance in append order. Fan-out problems never fail the call.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, senderID, text string) (view *models.MessageView, err error) {
	ctx, span := s.startSpan(ctx, "SendMessage",
		attribute.String("conversation.id", conversationID), attribute.String("user.id", senderID))
	defer func() { endSpan(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.maxLength {
		return nil, models.ErrMessageTooLong
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	msg, conv, err := s.store.AppendMessage(ctx, conversationID, senderID, text)
	if err != nil {
		return nil, err
	}
	metrics.MessagesAppended.Inc()

	// the message is durable from here on, so profile lookups degrade
	// instead of failing the send
	p, perr := s.loadProfiles(ctx, append(conv.Participants(), msg.SenderID))
	if perr != nil {
		s.log.Warn().Err(perr).Str("conversation_id", conversationID).Msg("load profiles for fan-out")
		p = profiles{}
	}

	mv := messageView(msg, p)
	s.broadcaster.BroadcastNewMessage(mv)
	s.broadcaster.BroadcastConversationUpdate(conversationView(conv, msg, p))

	return &mv, nil
}

// DeactivateConversation hides the conversation from both participants'
// lists until one of them opens it again.
func (s *ChatService) DeactivateConversation(ctx context.Context, conversationID, userID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeactivateConversation",
		attribute.String("conversation.id", conversationID), attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return models.ErrNotParticipant
	}
	return s.store.SetConversationActive(ctx, conversationID, false)
}
