package services

import (
	"context"

	"alumni-chat/models"
)

// profiles maps user ids to display summaries. A missing user resolves to a
// summary carrying only its id.
type profiles map[string]models.UserSummary

func (p profiles) get(id string) models.UserSummary {
	if s, ok := p[id]; ok {
		return s
	}
	return models.UserSummary{ID: id}
}

// loadProfiles batch-fetches the summaries of ids in one store round trip.
func (s *ChatService) loadProfiles(ctx context.Context, ids []string) (profiles, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	users, err := s.store.FindUsersByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	out := make(profiles, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Summary()
	}
	return out, nil
}

func messageView(msg *models.Message, p profiles) models.MessageView {
	return models.MessageView{
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
		Seq:            msg.Seq,
		Sender:         p.get(msg.SenderID),
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}

// conversationView builds the view. last may be nil, or may not be the
// message the conversation points to, in which case it is ignored.
func conversationView(conv *models.Conversation, last *models.Message, p profiles) models.ConversationView {
	view := models.ConversationView{
		ConversationID: conv.ConversationID,
		Participants:   []models.UserSummary{p.get(conv.ParticipantA), p.get(conv.ParticipantB)},
		MessageCount:   conv.MessageCount,
		IsActive:       conv.IsActive,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
	if last != nil && conv.LastMessageID != nil && *conv.LastMessageID == last.MessageID {
		mv := messageView(last, p)
		view.LastMessage = &mv
	}
	return view
}

// populateConversations resolves participants and latest messages for convs
// with two batch lookups.
func (s *ChatService) populateConversations(ctx context.Context, convs []models.Conversation) ([]models.ConversationView, error) {
	var lastIDs []string
	for i := range convs {
		if convs[i].LastMessageID != nil {
			lastIDs = append(lastIDs, *convs[i].LastMessageID)
		}
	}
	lastMsgs, err := s.store.FindMessagesByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Message, len(lastMsgs))
	for i := range lastMsgs {
		byID[lastMsgs[i].MessageID] = &lastMsgs[i]
	}

	userIDs := make([]string, 0, len(convs)*2+len(lastMsgs))
	for i := range convs {
		userIDs = append(userIDs, convs[i].ParticipantA, convs[i].ParticipantB)
	}
	for i := range lastMsgs {
		userIDs = append(userIDs, lastMsgs[i].SenderID)
	}
	p, err := s.loadProfiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.ConversationView, 0, len(convs))
	for i := range convs {
		var last *models.Message
		if convs[i].LastMessageID != nil {
			last = byID[*convs[i].LastMessageID]
		}
		views = append(views, conversationView(&convs[i], last, p))
	}
	return views, nil
}
