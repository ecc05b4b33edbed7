package services

import "encoding/json"

// Real-time event types. Client frames use joinConversation and
// leaveConversation, everything else is emitted by the server.
const (
	EventConnected          = "connected"
	EventJoinConversation   = "joinConversation"
	EventLeaveConversation  = "leaveConversation"
	EventJoined             = "joined"
	EventLeft               = "left"
	EventNewMessage         = "newMessage"
	EventUpdateConversation = "updateConversation"
	EventError              = "error"
)

// Event is one JSON text frame on the websocket.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data,omitempty"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ClientFrame is what a client may send.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func encodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// RoomForUser names the personal room every connection of userID joins.
func RoomForUser(userID string) string {
	return "user_" + userID
}

// RoomForConversation names the room that receives new messages of a conversation.
func RoomForConversation(conversationID string) string {
	return "conversation_" + conversationID
}
