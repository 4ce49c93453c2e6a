// Package wire defines the events exchanged over the real-time channel.
// The event set is closed: both the server hub and the client connection
// manager dispatch on these constants rather than free-form strings.
package wire

import (
	"encoding/json"
	"fmt"
)

// Event names carried in the envelope.
type Event string

const (
	// Client to server.
	JoinUserRoom     Event = "joinUserRoom"
	SendMessage      Event = "sendMessage"
	SendNotification Event = "sendNotification"

	// Server to a room.
	NewMessage      Event = "newMessage"
	NewNotification Event = "newNotification"

	// Server to a single connection.
	Connected Event = "connected"
	Error     Event = "error"
)

// Envelope is the frame format on the wire: an event name plus its payload.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for the given event.
func NewEnvelope(event Event, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Encode renders the envelope as a JSON frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a JSON frame into an envelope.
func Decode(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if e.Event == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing event name")
	}
	return e, nil
}

// JoinUserRoomPayload asks to join a user room. The server only honors it
// when the id matches the authenticated identity.
type JoinUserRoomPayload struct {
	UserID string `json:"userId"`
}

// SendMessagePayload is a client request to deliver a chat message.
type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
}

// NewMessagePayload is delivered to the receiver's room. The id allows
// receivers to deduplicate under at-least-once delivery.
type NewMessagePayload struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// SendNotificationPayload is a client request to forward a notification.
type SendNotificationPayload struct {
	UserID       string          `json:"userId"`
	Notification json.RawMessage `json:"notification"`
}

// ConnectedPayload confirms a successful handshake and names the room the
// connection was bound to.
type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload reports a rejected inbound event.
type ErrorPayload struct {
	Message string `json:"message"`
}
