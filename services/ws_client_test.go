package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueuedClient builds a client whose pumps never run, so its queue only
// drains when the test says so.
func newQueuedClient(m *WSManager, userID string, buffer int) *Client {
	opts := m.opts
	opts.SendBuffer = buffer
	opts.WriteWait = 10 * time.Second
	return NewClient(nil, userID, m, opts, zerolog.Nop())
}

func TestClient_OverflowClosesWithoutTouchingSocket(t *testing.T) {
	c := newQueuedClient(newTestManager(), "u2", 1)

	require.NoError(t, c.Send([]byte("first")))

	start := time.Now()
	assert.ErrorIs(t, c.Send([]byte("second")), ErrSendBufferFull)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-c.done:
	default:
		t.Fatal("client still open after overflow")
	}
	assert.ErrorIs(t, c.Send([]byte("third")), ErrClientClosed)

	// closing again is a no-op
	c.Close()
}

func TestChatService_StalledPeerDoesNotDelaySend(t *testing.T) {
	m := newTestManager()
	chat, _ := newTestChat(t, m)
	ctx := context.Background()

	conv, err := chat.GetOrCreateConversation(ctx, "u1", "u2")
	require.NoError(t, err)

	stalled := newQueuedClient(m, "u2", 1)
	healthy := newFakePeer("p1", "u2")
	for _, p := range []Peer{stalled, healthy} {
		m.Register(p)
		m.Join(p, conv.ConversationID)
	}

	start := time.Now()
	for _, text := range []string{"m1", "m2", "m3"} {
		_, err := chat.SendMessage(ctx, conv.ConversationID, "u1", text)
		require.NoError(t, err)
	}

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"m1", "m2", "m3"}, healthy.messageTexts(t))
	assert.ErrorIs(t, stalled.Send([]byte("late")), ErrClientClosed)
}
