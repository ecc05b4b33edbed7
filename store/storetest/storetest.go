// Package storetest holds behaviour checks shared by every store driver.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni-chat/models"
	"alumni-chat/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises a driver against the chat store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetOrCreateIsIdempotentAcrossOrder", func(t *testing.T) { testGetOrCreateIdempotent(t, newStore(t)) })
	t.Run("GetOrCreateConcurrentFirstContact", func(t *testing.T) { testGetOrCreateConcurrent(t, newStore(t)) })
	t.Run("GetOrCreateRejectsSelf", func(t *testing.T) { testGetOrCreateSelf(t, newStore(t)) })
	t.Run("GetOrCreateReactivates", func(t *testing.T) { testGetOrCreateReactivates(t, newStore(t)) })
	t.Run("AppendKeepsCallOrder", func(t *testing.T) { testAppendOrder(t, newStore(t)) })
	t.Run("AppendMovesLatestPointer", func(t *testing.T) { testAppendPointer(t, newStore(t)) })
	t.Run("ConcurrentAppendsGetDistinctSeq", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("NonParticipantIsForbidden", func(t *testing.T) { testForbidden(t, newStore(t)) })
	t.Run("MissingConversationIsNotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("ListHidesEmptyAndInactive", func(t *testing.T) { testListVisibility(t, newStore(t)) })
	t.Run("ListOrdersByLastActivity", func(t *testing.T) { testListOrdering(t, newStore(t)) })
	t.Run("UsersByEmailAndBatch", func(t *testing.T) { testUsers(t, newStore(t)) })
}

func seedUsers(t *testing.T, s store.Store, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		u := &models.User{Name: name, Email: name + "@alumni.test", Password: "x"}
		require.NoError(t, s.CreateUser(context.Background(), u))
		ids = append(ids, u.ID)
	}
	return ids
}

func testGetOrCreateIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "alice", "bob")

	first, created, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{ids[0], ids[1]}, first.Participants())
	assert.Nil(t, first.LastMessageID)
	assert.True(t, first.IsActive)

	second, created, err := s.GetOrCreateConversation(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	third, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, third.ConversationID)
}

func testGetOrCreateConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "carol", "dave")

	const workers = 16
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := ids[0], ids[1]
			if i%2 == 1 {
				a, b = b, a
			}
			conv, _, err := s.GetOrCreateConversation(ctx, a, b)
			if assert.NoError(t, err) {
				results[i] = conv.ConversationID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
}

func testGetOrCreateSelf(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "erin")

	conv, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[0])
	assert.ErrorIs(t, err, models.ErrSelfConversation)
	assert.Nil(t, conv)

	_, _, err = s.AppendMessage(ctx, models.PairKey(ids[0], ids[0]), ids[0], "hi")
	assert.ErrorIs(t, err, models.ErrConversationNotFound)
}

func testGetOrCreateReactivates(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "frank", "grace")

	conv, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, _, err = s.AppendMessage(ctx, conv.ConversationID, ids[0], "hello")
	require.NoError(t, err)
	require.NoError(t, s.SetConversationActive(ctx, conv.ConversationID, false))

	list, err := s.ListConversationsForUser(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, list)

	again, created, err := s.GetOrCreateConversation(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ConversationID, again.ConversationID)
	assert.True(t, again.IsActive)

	list, err = s.ListConversationsForUser(ctx, ids[1])
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testAppendOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "heidi", "ivan")
	conv, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	var want []string
	for i := 0; i < 25; i++ {
		sender := ids[i%2]
		text := fmt.Sprintf("message %d", i)
		msg, _, err := s.AppendMessage(ctx, conv.ConversationID, sender, text)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), msg.Seq)
		want = append(want, text)
	}

	msgs, err := s.ListMessages(ctx, conv.ConversationID, ids[1])
	require.NoError(t, err)
	got := make([]string, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.Text)
	}
	assert.Equal(t, want, got)
}

func testAppendPointer(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "judy", "mallory")
	conv, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		msg, updated, err := s.AppendMessage(ctx, conv.ConversationID, ids[0], text)
		require.NoError(t, err)
		require.NotNil(t, updated.LastMessageID)
		assert.Equal(t, msg.MessageID, *updated.LastMessageID)
		assert.Equal(t, conv.ConversationID, msg.ConversationID)

		reread, err := s.FindConversation(ctx, conv.ConversationID)
		require.NoError(t, err)
		require.NotNil(t, reread.LastMessageID)
		assert.Equal(t, msg.MessageID, *reread.LastMessageID)
		assert.False(t, reread.UpdatedAt.Before(reread.CreatedAt))
	}
}

func testConcurrentAppend(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "niaj", "olivia")
	conv, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.AppendMessage(ctx, conv.ConversationID, ids[i%2], fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, conv.ConversationID, ids[0])
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}

	reread, err := s.FindConversation(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, reread.LastMessageID)
	assert.Equal(t, msgs[n-1].MessageID, *reread.LastMessageID)
	assert.Equal(t, int64(n), reread.MessageCount)
}

func testForbidden(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "peggy", "rupert", "sybil")
	conv, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, _, err = s.AppendMessage(ctx, conv.ConversationID, ids[0], "private")
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ConversationID, ids[2])
	assert.ErrorIs(t, err, models.ErrNotParticipant)
	assert.Nil(t, msgs)

	msg, updated, err := s.AppendMessage(ctx, conv.ConversationID, ids[2], "intrusion")
	assert.ErrorIs(t, err, models.ErrNotParticipant)
	assert.Nil(t, msg)
	assert.Nil(t, updated)

	msgs, err = s.ListMessages(ctx, conv.ConversationID, ids[0])
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "trent")

	_, err := s.ListMessages(ctx, "missing", ids[0])
	assert.ErrorIs(t, err, models.ErrConversationNotFound)

	_, _, err = s.AppendMessage(ctx, "missing", ids[0], "hello")
	assert.ErrorIs(t, err, models.ErrConversationNotFound)

	_, err = s.FindConversation(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrConversationNotFound)

	assert.ErrorIs(t, s.SetConversationActive(ctx, "missing", false), models.ErrConversationNotFound)
}

func testListVisibility(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "uma", "victor", "walter")

	quiet, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	list, err := s.ListConversationsForUser(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, list)

	_, _, err = s.AppendMessage(ctx, quiet.ConversationID, ids[1], "first")
	require.NoError(t, err)
	for _, uid := range ids[:2] {
		list, err = s.ListConversationsForUser(ctx, uid)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, quiet.ConversationID, list[0].ConversationID)
	}

	list, err = s.ListConversationsForUser(ctx, ids[2])
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testListOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "xavier", "yolanda", "zed")

	withY, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	withZ, _, err := s.GetOrCreateConversation(ctx, ids[0], ids[2])
	require.NoError(t, err)

	_, _, err = s.AppendMessage(ctx, withY.ConversationID, ids[0], "to y")
	require.NoError(t, err)
	_, _, err = s.AppendMessage(ctx, withZ.ConversationID, ids[0], "to z")
	require.NoError(t, err)

	list, err := s.ListConversationsForUser(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].UpdatedAt.Before(list[1].UpdatedAt))

	seen := map[string]bool{}
	for _, c := range list {
		assert.False(t, seen[c.ConversationID])
		seen[c.ConversationID] = true
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := seedUsers(t, s, "amy", "ben")

	err := s.CreateUser(ctx, &models.User{Name: "amy again", Email: "AMY@alumni.test", Password: "x"})
	assert.ErrorIs(t, err, models.ErrEmailTaken)

	u, err := s.FindUserByEmail(ctx, "Amy@Alumni.test")
	require.NoError(t, err)
	assert.Equal(t, ids[0], u.ID)

	_, err = s.FindUserByID(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	users, err := s.FindUsersByIDs(ctx, []string{ids[1], "nobody", ids[0]})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
