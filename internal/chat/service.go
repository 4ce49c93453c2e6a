// Package chat implements the durable send path, the conversation
// aggregation and the read-state tracking on top of the message store.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/creatorhub/messaging/internal/bus"
	"github.com/creatorhub/messaging/internal/store"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SendRequest is the payload of a message send, validated before any write.
type SendRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required,max=4096"`
	Type       string `json:"type" validate:"omitempty,oneof=text image other"`
}

// Service owns the authoritative message operations. The live fan-out is
// driven by the outbox the store fills on create, never by a second write
// from the client.
type Service struct {
	db       *store.DB
	bus      *bus.Bus
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates the chat service.
func NewService(db *store.DB, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		bus:      b,
		validate: validator.New(),
		logger:   logger,
	}
}

// Send validates the payload, resolves the receiver and persists the
// message together with its outbox entry in one transaction. Returns the
// stored record. Nothing is persisted on a validation or resolution
// failure.
func (s *Service) Send(_ context.Context, senderID string, req SendRequest) (*store.Message, error) {
	if req.Type == "" {
		req.Type = store.TypeText
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &ValidationError{Field: verrs[0].Field(), Reason: verrs[0].Tag()}
		}
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if senderID == "" {
		return nil, &ValidationError{Field: "senderId", Reason: "required"}
	}

	exists, err := s.db.UserExists(req.ReceiverID)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve receiver", Err: err}
	}
	if !exists {
		return nil, &NotFoundError{Resource: "user", ID: req.ReceiverID}
	}

	m, err := s.db.CreateMessage(senderID, req.ReceiverID, req.Content, req.Type)
	if err != nil {
		return nil, &PersistenceError{Op: "create message", Err: err}
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.MessageCreated,
		Timestamp: time.Now(),
		Payload:   m,
	})
	s.logger.Info("message created",
		zap.String("message_id", m.ID),
		zap.String("sender_id", m.SenderID),
		zap.String("receiver_id", m.ReceiverID))
	return m, nil
}

// History returns every stored message between the user and the other
// party, in creation order. Fetching history does not mark anything read;
// callers pair it with MarkSeen when opening a conversation.
func (s *Service) History(_ context.Context, selfID, otherID string) ([]store.Message, error) {
	return s.db.History(selfID, otherID)
}

// Conversations derives the user's counterpart list: one entry per
// counterpart, latest message either direction, unread count for the
// counterpart -> self direction, sorted by last message time descending.
func (s *Service) Conversations(_ context.Context, selfID string) ([]store.Conversation, error) {
	return s.db.Conversations(selfID)
}

// MarkSeen marks the conversation with a counterpart as seen: every unread
// message from counterpart to self becomes read. The opposite direction is
// never touched. Idempotent; returns the resulting unread count, which is
// always zero on success.
func (s *Service) MarkSeen(_ context.Context, selfID, counterpartID string) (int, error) {
	n, err := s.db.MarkRead(counterpartID, selfID)
	if err != nil {
		return 0, &PersistenceError{Op: "mark read", Err: err}
	}
	if n > 0 {
		s.bus.Publish(bus.Event{
			Kind:      bus.MessageRead,
			Timestamp: time.Now(),
			Payload: ReadReceipt{
				ReaderID:      selfID,
				CounterpartID: counterpartID,
				Count:         n,
			},
		})
	}
	return s.db.UnreadCount(counterpartID, selfID)
}

// MarkAllSeen marks every conversation of the user as seen. Idempotent.
func (s *Service) MarkAllSeen(_ context.Context, selfID string) (int64, error) {
	n, err := s.db.MarkAllRead(selfID)
	if err != nil {
		return 0, &PersistenceError{Op: "mark all read", Err: err}
	}
	if n > 0 {
		s.bus.Publish(bus.Event{
			Kind:      bus.MessageRead,
			Timestamp: time.Now(),
			Payload:   ReadReceipt{ReaderID: selfID, Count: n},
		})
	}
	return n, nil
}

// SyncUser upserts a directory entry. The platform calls this when a user
// is created or updated so receiver resolution stays current.
func (s *Service) SyncUser(_ context.Context, u *store.User) error {
	if u.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if err := s.db.UpsertUser(u); err != nil {
		return &PersistenceError{Op: "upsert user", Err: err}
	}
	return nil
}

// ReadReceipt is the bus payload for read-state transitions.
type ReadReceipt struct {
	ReaderID      string
	CounterpartID string
	Count         int64
}
