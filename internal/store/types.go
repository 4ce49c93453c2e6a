package store

// Message statuses. Transitions are monotonic: sent -> delivered -> read.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message types.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeOther = "other"
)

// Outbox entry statuses.
const (
	OutboxQueued  = "queued"
	OutboxRelayed = "relayed"
)

// User is a directory entry synced from the platform, used to resolve
// message receivers.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Message is a stored chat message. Immutable except Status.
type Message struct {
	Seq        int64  `json:"-"`
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
}

// Conversation is the derived per-counterpart aggregate. Not persisted.
type Conversation struct {
	CounterpartID string  `json:"counterpartId"`
	LastMessage   Message `json:"lastMessage"`
	UnreadCount   int     `json:"unreadCount"`
}

// OutboxEntry is a pending live-delivery record for a stored message.
type OutboxEntry struct {
	ID         int64
	MessageID  string
	ReceiverID string
	Status     string
}
