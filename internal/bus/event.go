package bus

import "time"

// Kind identifies a domain event. The set is closed: components publish and
// subscribe with these constants, never ad-hoc strings.
type Kind string

const (
	// Message lifecycle, published by the chat service and the relay loop.
	MessageCreated   Kind = "message.created"
	MessageRelayed   Kind = "message.relayed"
	MessageDelivered Kind = "message.delivered"
	MessageRead      Kind = "message.read"

	// Client connection state, published by the realtime connection manager.
	ConnStateChanged Kind = "conn.state_changed"

	// Room membership on the server hub.
	RoomJoined Kind = "room.joined"
	RoomLeft   Kind = "room.left"
)

// Namespace prefixes accepted by Subscribe.
const (
	NamespaceMessage = "message."
	NamespaceConn    = "conn."
	NamespaceRoom    = "room."
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}
