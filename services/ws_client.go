package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrClientClosed   = errors.New("connection closed")
	ErrSendBufferFull = errors.New("connection send buffer full")
)

// ClientOptions tunes the websocket heartbeat and buffering.
type ClientOptions struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	ReadLimit      int64
	AllowedOrigins []string
}

// Client is one websocket connection. Writes go through a buffered queue
// drained by writePump; a client that cannot keep up is closed.
type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	opts    ClientOptions
	manager *WSManager
	log     zerolog.Logger
}

var _ Peer = (*Client)(nil)

func NewClient(conn *websocket.Conn, userID string, manager *WSManager, opts ClientOptions, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		opts:    opts,
		manager: manager,
		log:     log.With().Str("connection_id", id).Str("user_id", userID).Logger(),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.Close()
		return ErrSendBufferFull
	}
}

// Close marks the client closed and returns at once. writePump sends the
// close frame and closes the socket, so callers never wait on the network.
// Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Run registers the client, starts the writer and reads until the socket
// fails. It returns after the client has been unregistered.
func (c *Client) Run() {
	c.manager.Register(c)
	go c.writePump()

	c.sendEvent(Event{Type: EventConnected, Data: map[string]string{"user_id": c.userID}})
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.manager.Unregister(c)
		c.Close()
	}()

	if c.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(c.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		c.handleFrame(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

func (c *Client) handleFrame(data []byte) {
	// browsers cannot send protocol pings, so a text "ping" is answered too
	if strings.TrimSpace(string(data)) == "ping" {
		_ = c.Send([]byte("pong"))
		return
	}

	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("bad_frame", "frame must be a JSON object")
		return
	}

	switch frame.Type {
	case EventJoinConversation:
		if frame.ConversationID == "" {
			c.sendError("bad_frame", "conversation_id is required")
			return
		}
		c.manager.Join(c, frame.ConversationID)
		c.sendEvent(Event{Type: EventJoined, ConversationID: frame.ConversationID})
	case EventLeaveConversation:
		if frame.ConversationID == "" {
			c.sendError("bad_frame", "conversation_id is required")
			return
		}
		c.manager.Leave(c, frame.ConversationID)
		c.sendEvent(Event{Type: EventLeft, ConversationID: frame.ConversationID})
	default:
		c.sendError("unknown_type", "unsupported event type "+frame.Type)
	}
}

func (c *Client) sendEvent(ev Event) {
	payload, err := encodeEvent(ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", ev.Type).Msg("encode event")
		return
	}
	if err := c.Send(payload); err != nil {
		c.log.Debug().Err(err).Str("event", ev.Type).Msg("reply dropped")
	}
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(Event{Type: EventError, Code: code, Error: message})
}
