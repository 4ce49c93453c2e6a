// Package hub is the room router: each authenticated connection is bound to
// exactly one room named by its verified user identity, and events are
// relayed only to current members of the target room. Nothing is buffered
// for offline receivers; durability lives in the message store.
package hub

import (
	"sync"
	"time"

	"github.com/creatorhub/messaging/internal/bus"
	"go.uber.org/zap"
)

// Hub tracks room membership. Membership is the only shared mutable state
// on the server side.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an empty hub.
func New(b *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		bus:    b,
		logger: logger,
	}
}

// join binds a client to the room named by its user id.
func (h *Hub) join(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.UserID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[c.UserID] = room
	}
	room[c] = true
	h.mu.Unlock()

	h.logger.Info("client joined room", zap.String("room", c.UserID))
	h.bus.Publish(bus.Event{Kind: bus.RoomJoined, Timestamp: time.Now(), Payload: c.UserID})
}

// leave removes a client; the room disappears with its last member. No
// state is retained for a disconnected client.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.UserID]; ok {
		if room[c] {
			delete(room, c)
			close(c.send)
		}
		if len(room) == 0 {
			delete(h.rooms, c.UserID)
		}
	}
	h.mu.Unlock()

	h.logger.Info("client left room", zap.String("room", c.UserID))
	h.bus.Publish(bus.Event{Kind: bus.RoomLeft, Timestamp: time.Now(), Payload: c.UserID})
}

// Deliver writes a frame to every current member of the room and returns
// how many members it reached. Zero means the receiver is offline and the
// durable history is the fallback path. Callers delivering from a single
// goroutine get in-order delivery per room.
func (h *Hub) Deliver(room string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
			n++
		default:
			// Slow consumer: drop the frame rather than block the relay;
			// the client recovers via history on reconnect.
			h.logger.Warn("dropping frame for slow consumer", zap.String("room", room))
		}
	}
	return n
}

// RoomSize reports the current member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
