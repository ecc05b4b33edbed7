package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni-chat/models"
)

type fakePeer struct {
	id     string
	userID string

	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	panics  bool
	closed  bool
}

func newFakePeer(id, userID string) *fakePeer {
	return &fakePeer{id: id, userID: userID}
}

func (p *fakePeer) ID() string     { return p.id }
func (p *fakePeer) UserID() string { return p.userID }

func (p *fakePeer) Send(payload []byte) error {
	if p.panics {
		panic("socket gone")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, payload)
	return nil
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

type decodedEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Data           json.RawMessage `json:"data"`
}

func (p *fakePeer) events(t *testing.T) []decodedEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]decodedEvent, 0, len(p.frames))
	for _, f := range p.frames {
		var ev decodedEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (p *fakePeer) messageTexts(t *testing.T) []string {
	t.Helper()
	var texts []string
	for _, ev := range p.events(t) {
		if ev.Type != EventNewMessage {
			continue
		}
		var mv models.MessageView
		require.NoError(t, json.Unmarshal(ev.Data, &mv))
		texts = append(texts, mv.Text)
	}
	return texts
}

type fakeRelay struct {
	mu     sync.Mutex
	rooms  []string
	events []string
	err    error
}

func (r *fakeRelay) Publish(_ context.Context, room, event string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	r.events = append(r.events, event)
	return r.err
}

func newTestManager() *WSManager {
	return NewWSManager(ClientOptions{
		PingInterval: time.Second,
		PongTimeout:  2 * time.Second,
		WriteWait:    time.Second,
		SendBuffer:   16,
	}, zerolog.Nop())
}

func testMessage(conversationID, text string, seq int64) models.MessageView {
	return models.MessageView{
		MessageID:      fmt.Sprintf("m%d", seq),
		ConversationID: conversationID,
		Seq:            seq,
		Sender:         models.UserSummary{ID: "u1", Name: "Alice"},
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestWSManager_RegisterJoinsPersonalRoom(t *testing.T) {
	m := newTestManager()
	p := newFakePeer("p1", "u1")

	m.Register(p)

	assert.Equal(t, 1, m.RoomSize(RoomForUser("u1")))
	assert.Equal(t, []string{"user_u1"}, m.RoomsOf(p))
}

func TestWSManager_JoinRequiresRegistration(t *testing.T) {
	m := newTestManager()
	p := newFakePeer("p1", "u1")

	assert.False(t, m.Join(p, "c1"))
	assert.Equal(t, 0, m.RoomSize(RoomForConversation("c1")))

	m.Register(p)
	assert.True(t, m.Join(p, "c1"))
	assert.Equal(t, 1, m.RoomSize(RoomForConversation("c1")))
}

func TestWSManager_NewMessageOnlyReachesConversationRoom(t *testing.T) {
	m := newTestManager()
	viewing := newFakePeer("p1", "u2")
	elsewhere := newFakePeer("p2", "u2")
	m.Register(viewing)
	m.Register(elsewhere)
	m.Join(viewing, "c1")

	m.BroadcastNewMessage(testMessage("c1", "hello", 1))

	assert.Equal(t, []string{"hello"}, viewing.messageTexts(t))
	assert.Empty(t, elsewhere.messageTexts(t))
}

func TestWSManager_ConversationUpdateReachesEveryParticipantConnection(t *testing.T) {
	m := newTestManager()
	aliceLaptop := newFakePeer("p1", "u1")
	alicePhone := newFakePeer("p2", "u1")
	bob := newFakePeer("p3", "u2")
	carol := newFakePeer("p4", "u3")
	for _, p := range []*fakePeer{aliceLaptop, alicePhone, bob, carol} {
		m.Register(p)
	}

	m.BroadcastConversationUpdate(models.ConversationView{
		ConversationID: "c1",
		Participants:   []models.UserSummary{{ID: "u1"}, {ID: "u2"}},
	})

	for _, p := range []*fakePeer{aliceLaptop, alicePhone, bob} {
		events := p.events(t)
		require.Len(t, events, 1, p.id)
		assert.Equal(t, EventUpdateConversation, events[0].Type)
		assert.Equal(t, "c1", events[0].ConversationID)
	}
	assert.Empty(t, carol.events(t))
}

func TestWSManager_LeaveStopsDelivery(t *testing.T) {
	m := newTestManager()
	p := newFakePeer("p1", "u2")
	m.Register(p)
	m.Join(p, "c1")

	m.BroadcastNewMessage(testMessage("c1", "first", 1))
	m.Leave(p, "c1")
	m.BroadcastNewMessage(testMessage("c1", "second", 2))

	assert.Equal(t, []string{"first"}, p.messageTexts(t))
	assert.Equal(t, 0, m.RoomSize(RoomForConversation("c1")))
	assert.Equal(t, 1, m.RoomSize(RoomForUser("u2")))
}

func TestWSManager_UnregisterRemovesFromAllRooms(t *testing.T) {
	m := newTestManager()
	p := newFakePeer("p1", "u1")
	m.Register(p)
	m.Join(p, "c1")
	m.Join(p, "c2")

	rooms := m.RoomsOf(p)
	sort.Strings(rooms)
	assert.Equal(t, []string{"conversation_c1", "conversation_c2", "user_u1"}, rooms)

	m.Unregister(p)

	assert.Empty(t, m.RoomsOf(p))
	for _, room := range rooms {
		assert.Equal(t, 0, m.RoomSize(room), room)
	}
	assert.False(t, m.Join(p, "c3"))

	// a second unregister is a no-op
	m.Unregister(p)
}

func TestWSManager_EmissionFailureIsIsolated(t *testing.T) {
	m := newTestManager()
	broken := newFakePeer("p1", "u1")
	broken.sendErr = errors.New("write: broken pipe")
	panicking := newFakePeer("p2", "u1")
	panicking.panics = true
	healthy := newFakePeer("p3", "u2")
	for _, p := range []*fakePeer{broken, panicking, healthy} {
		m.Register(p)
		m.Join(p, "c1")
	}

	payload, err := encodeEvent(Event{Type: EventNewMessage, ConversationID: "c1", Data: testMessage("c1", "hi", 1)})
	require.NoError(t, err)

	delivered := m.EmitLocal(RoomForConversation("c1"), EventNewMessage, payload)

	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"hi"}, healthy.messageTexts(t))
}

func TestWSManager_BroadcastKeepsOrder(t *testing.T) {
	m := newTestManager()
	p := newFakePeer("p1", "u2")
	m.Register(p)
	m.Join(p, "c1")

	var want []string
	for i := 1; i <= 20; i++ {
		text := fmt.Sprintf("m%d", i)
		want = append(want, text)
		m.BroadcastNewMessage(testMessage("c1", text, int64(i)))
	}

	assert.Equal(t, want, p.messageTexts(t))
}

func TestWSManager_RelayReceivesEventsAndErrorsAreSwallowed(t *testing.T) {
	m := newTestManager()
	relay := &fakeRelay{err: errors.New("redis down")}
	m.SetRelay(relay)
	p := newFakePeer("p1", "u2")
	m.Register(p)
	m.Join(p, "c1")

	m.BroadcastNewMessage(testMessage("c1", "hello", 1))
	m.BroadcastConversationUpdate(models.ConversationView{
		ConversationID: "c1",
		Participants:   []models.UserSummary{{ID: "u1"}, {ID: "u2"}},
	})

	assert.Equal(t, []string{"conversation_c1", "user_u1", "user_u2"}, relay.rooms)
	assert.Equal(t, []string{EventNewMessage, EventUpdateConversation, EventUpdateConversation}, relay.events)
	assert.Len(t, p.events(t), 2)
}

func TestWSManager_CloseDisconnectsEveryone(t *testing.T) {
	m := newTestManager()
	a := newFakePeer("p1", "u1")
	b := newFakePeer("p2", "u2")
	m.Register(a)
	m.Register(b)
	m.Join(a, "c1")

	m.Close()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Equal(t, 0, m.RoomSize(RoomForConversation("c1")))
	assert.Equal(t, 0, m.RoomSize(RoomForUser("u1")))
}
