// Package outbox drains pending delivery entries and pushes newMessage
// events into receiver rooms. It is the only live fan-out path: a message
// reaches the wire exactly because it reached the store first.
package outbox

import (
	"context"
	"time"

	"github.com/creatorhub/messaging/internal/bus"
	"github.com/creatorhub/messaging/internal/store"
	"github.com/creatorhub/messaging/internal/wire"
	"go.uber.org/zap"
)

// RoomDeliverer is the slice of the hub the relay needs: deliver a frame to
// a room, reporting how many live members received it.
type RoomDeliverer interface {
	Deliver(room string, frame []byte) int
}

// Relay polls the outbox and fans stored messages out to live rooms.
type Relay struct {
	db     *store.DB
	rooms  RoomDeliverer
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewRelay creates a relay.
func NewRelay(db *store.DB, rooms RoomDeliverer, b *bus.Bus, logger *zap.Logger) *Relay {
	return &Relay{
		db:     db,
		rooms:  rooms,
		bus:    b,
		logger: logger,
	}
}

// Start begins polling for pending entries.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop stops the relay loop.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Relay) loop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPending()
		case <-ctx.Done():
			return
		}
	}
}

// processPending relays entries in creation order. A crash between Deliver
// and MarkOutboxRelayed replays the entry on restart: delivery is
// at-least-once and receivers dedupe on the message id.
func (r *Relay) processPending() {
	pending, err := r.db.PendingOutbox()
	if err != nil {
		r.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		m, err := r.db.GetMessage(entry.MessageID)
		if err != nil {
			r.logger.Error("failed to load message", zap.Error(err), zap.String("message_id", entry.MessageID))
			continue
		}
		if m == nil {
			// Orphaned entry; retire it so the loop cannot spin on it.
			_ = r.db.MarkOutboxRelayed(entry.MessageID)
			continue
		}

		env, err := wire.NewEnvelope(wire.NewMessage, wire.NewMessagePayload{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Message:   m.Content,
			Type:      m.Type,
			Timestamp: m.CreatedAt,
		})
		if err != nil {
			r.logger.Error("encode newMessage", zap.Error(err), zap.String("message_id", m.ID))
			continue
		}
		frame, err := env.Encode()
		if err != nil {
			r.logger.Error("encode frame", zap.Error(err), zap.String("message_id", m.ID))
			continue
		}

		reached := r.rooms.Deliver(entry.ReceiverID, frame)
		if reached > 0 {
			if _, err := r.db.MarkDelivered(m.ID); err != nil {
				r.logger.Error("failed to mark delivered", zap.Error(err), zap.String("message_id", m.ID))
			} else {
				r.bus.Publish(bus.Event{
					Kind:      bus.MessageDelivered,
					Timestamp: time.Now(),
					Payload:   m.ID,
				})
			}
		}

		// Relayed is terminal either way: offline receivers read the
		// durable history on their next fetch.
		if err := r.db.MarkOutboxRelayed(m.ID); err != nil {
			r.logger.Error("failed to retire outbox entry", zap.Error(err), zap.String("message_id", m.ID))
			continue
		}
		r.bus.Publish(bus.Event{
			Kind:      bus.MessageRelayed,
			Timestamp: time.Now(),
			Payload:   m.ID,
		})
		r.logger.Info("message relayed",
			zap.String("message_id", m.ID),
			zap.String("room", entry.ReceiverID),
			zap.Int("reached", reached))
	}
}
