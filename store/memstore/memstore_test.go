package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni-chat/models"
	"alumni-chat/store"
	"alumni-chat/store/memstore"
	"alumni-chat/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memstore.New()
	})
}

func TestAppendResultDoesNotAliasStoredPointer(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, s.CreateUser(ctx, &models.User{ID: id, Name: id, Email: id + "@alumni.test"}))
	}
	conv, _, err := s.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	msg, updated, err := s.AppendMessage(ctx, conv.ConversationID, "u1", "hello")
	require.NoError(t, err)
	stored := msg.MessageID

	msg.MessageID = "rewritten"
	*updated.LastMessageID = "also rewritten"

	reloaded, err := s.FindConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastMessageID)
	assert.Equal(t, stored, *reloaded.LastMessageID)
}
