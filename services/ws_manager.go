package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"alumni-chat/metrics"
	"alumni-chat/models"
)

// Peer is one live connection as seen by the gateway.
type Peer interface {
	ID() string
	UserID() string
	// Send queues payload without blocking on the network.
	Send(payload []byte) error
	Close()
}

// Relay forwards room events to other instances of the service.
type Relay interface {
	Publish(ctx context.Context, room, event string, payload []byte) error
}

// Broadcaster is the part of the gateway the chat service depends on.
type Broadcaster interface {
	BroadcastNewMessage(msg models.MessageView)
	BroadcastConversationUpdate(conv models.ConversationView)
}

// WSManager tracks live connections and the rooms they belong to. Every
// registered connection sits in its personal room until it is unregistered.
type WSManager struct {
	mu        sync.RWMutex
	peers     map[string]Peer
	rooms     map[string]map[string]Peer
	peerRooms map[string]map[string]struct{}

	relay    Relay
	upgrader websocket.Upgrader
	opts     ClientOptions
	log      zerolog.Logger
}

var _ Broadcaster = (*WSManager)(nil)

func NewWSManager(opts ClientOptions, log zerolog.Logger) *WSManager {
	return &WSManager{
		peers:     make(map[string]Peer),
		rooms:     make(map[string]map[string]Peer),
		peerRooms: make(map[string]map[string]struct{}),
		upgrader:  newUpgrader(opts.AllowedOrigins),
		opts:      opts,
		log:       log.With().Str("component", "ws_manager").Logger(),
	}
}

// SetRelay enables cross-instance fan-out. Call before serving traffic.
func (m *WSManager) SetRelay(r Relay) {
	m.relay = r
}

// Register adds an authenticated connection and joins its personal room.
func (m *WSManager) Register(p Peer) {
	m.mu.Lock()
	m.peers[p.ID()] = p
	m.joinLocked(RoomForUser(p.UserID()), p)
	m.mu.Unlock()

	metrics.RecordConnectionOpened()
	m.log.Debug().Str("connection_id", p.ID()).Str("user_id", p.UserID()).Msg("connection registered")
}

// Unregister removes the connection from every room it joined.
func (m *WSManager) Unregister(p Peer) {
	m.mu.Lock()
	_, ok := m.peers[p.ID()]
	if ok {
		delete(m.peers, p.ID())
		for room := range m.peerRooms[p.ID()] {
			m.leaveLocked(room, p.ID())
		}
		delete(m.peerRooms, p.ID())
	}
	m.mu.Unlock()

	if ok {
		metrics.RecordConnectionClosed()
		m.log.Debug().Str("connection_id", p.ID()).Str("user_id", p.UserID()).Msg("connection unregistered")
	}
}

// Join subscribes a registered connection to a conversation room. It does not
// check conversation membership.
func (m *WSManager) Join(p Peer, conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.peers[p.ID()]; !ok {
		return false
	}
	m.joinLocked(RoomForConversation(conversationID), p)
	return true
}

// Leave unsubscribes the connection from a conversation room.
func (m *WSManager) Leave(p Peer, conversationID string) {
	m.mu.Lock()
	m.leaveLocked(RoomForConversation(conversationID), p.ID())
	m.mu.Unlock()
}

// RoomSize returns the number of local connections in room.
func (m *WSManager) RoomSize(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

// RoomsOf returns the rooms a connection is currently in.
func (m *WSManager) RoomsOf(p Peer) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]string, 0, len(m.peerRooms[p.ID()]))
	for room := range m.peerRooms[p.ID()] {
		rooms = append(rooms, room)
	}
	return rooms
}

// BroadcastNewMessage emits msg to the conversation room.
func (m *WSManager) BroadcastNewMessage(msg models.MessageView) {
	m.broadcast(RoomForConversation(msg.ConversationID), Event{
		Type:           EventNewMessage,
		ConversationID: msg.ConversationID,
		Data:           msg,
	})
}

// BroadcastConversationUpdate emits conv to the personal room of each participant.
func (m *WSManager) BroadcastConversationUpdate(conv models.ConversationView) {
	ev := Event{
		Type:           EventUpdateConversation,
		ConversationID: conv.ConversationID,
		Data:           conv,
	}
	for _, p := range conv.Participants {
		m.broadcast(RoomForUser(p.ID), ev)
	}
}

func (m *WSManager) broadcast(room string, ev Event) {
	payload, err := encodeEvent(ev)
	if err != nil {
		m.log.Error().Err(err).Str("room", room).Str("event", ev.Type).Msg("encode event")
		return
	}

	m.EmitLocal(room, ev.Type, payload)

	if m.relay != nil {
		if err := m.relay.Publish(context.Background(), room, ev.Type, payload); err != nil {
			metrics.RelayPublishErrors.Inc()
			m.log.Warn().Err(err).Str("room", room).Str("event", ev.Type).Msg("relay publish failed")
		}
	}
}

// EmitLocal sends payload to every local connection in room and returns how
// many accepted it. A failing connection is logged and skipped.
func (m *WSManager) EmitLocal(room, event string, payload []byte) int {
	m.mu.RLock()
	members := make([]Peer, 0, len(m.rooms[room]))
	for _, p := range m.rooms[room] {
		members = append(members, p)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, p := range members {
		err := safeSend(p, payload)
		metrics.RecordDelivery(event, err)
		if err != nil {
			m.log.Warn().
				Err(err).
				Str("room", room).
				Str("event", event).
				Str("connection_id", p.ID()).
				Str("user_id", p.UserID()).
				Msg("emit failed")
			continue
		}
		delivered++
	}
	return delivered
}

func safeSend(p Peer, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return p.Send(payload)
}

// Close disconnects every connection and clears all rooms.
func (m *WSManager) Close() {
	m.mu.Lock()
	peers := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.peers = make(map[string]Peer)
	m.rooms = make(map[string]map[string]Peer)
	m.peerRooms = make(map[string]map[string]struct{})
	m.mu.Unlock()

	for _, p := range peers {
		metrics.RecordConnectionClosed()
		p.Close()
	}
}

func (m *WSManager) joinLocked(room string, p Peer) {
	members := m.rooms[room]
	if members == nil {
		members = make(map[string]Peer)
		m.rooms[room] = members
	}
	members[p.ID()] = p

	joined := m.peerRooms[p.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		m.peerRooms[p.ID()] = joined
	}
	joined[room] = struct{}{}
}

func (m *WSManager) leaveLocked(room, peerID string) {
	if members := m.rooms[room]; members != nil {
		delete(members, peerID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if joined := m.peerRooms[peerID]; joined != nil {
		delete(joined, room)
	}
}
