package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/creatorhub/messaging/internal/auth"
	"github.com/creatorhub/messaging/internal/chat"
	"github.com/creatorhub/messaging/internal/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests to room-bound WebSocket connections and
// dispatches inbound wire events.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	svc      *chat.Service
	timings  Timings
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(h *Hub, verifier *auth.Verifier, svc *chat.Service, t Timings, logger *zap.Logger) *Handler {
	return &Handler{
		hub:      h,
		verifier: verifier,
		svc:      svc,
		timings:  t,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of this
			// handler.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the handshake, binds the connection to the room
// named by the verified identity and starts the pumps. The room name comes
// from the token, never from the client.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		h.logger.Warn("handshake rejected", zap.Error(err))
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(userID, h.hub, conn, h.timings, h.logger)
	h.hub.join(c)
	c.sendEvent(wire.Connected, wire.ConnectedPayload{UserID: userID})

	go c.writePump()
	go c.readPump(h.dispatch)
}

func (h *Handler) dispatch(c *Client, env wire.Envelope) {
	switch env.Event {
	case wire.JoinUserRoom:
		h.handleJoinUserRoom(c, env.Data)
	case wire.SendMessage:
		h.handleSendMessage(c, env.Data)
	case wire.SendNotification:
		h.handleSendNotification(c, env.Data)
	default:
		c.sendEvent(wire.Error, wire.ErrorPayload{Message: "unknown event " + string(env.Event)})
	}
}

// handleJoinUserRoom validates the legacy join request. The connection is
// already a member of its own room; a payload claiming another identity is
// rejected.
func (h *Handler) handleJoinUserRoom(c *Client, data json.RawMessage) {
	var p wire.JoinUserRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		// The original clients send the bare user id rather than an object.
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			c.sendEvent(wire.Error, wire.ErrorPayload{Message: "malformed joinUserRoom payload"})
			return
		}
		p.UserID = id
	}
	if p.UserID != c.UserID {
		h.logger.Warn("join rejected for foreign room",
			zap.String("authenticated", c.UserID),
			zap.String("requested", p.UserID))
		c.sendEvent(wire.Error, wire.ErrorPayload{Message: "cannot join another user's room"})
	}
}

// handleSendMessage routes the event through the chat service, so the
// durable write is what drives the fan-out. The sender id must match the
// authenticated identity.
func (h *Handler) handleSendMessage(c *Client, data json.RawMessage) {
	var p wire.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendEvent(wire.Error, wire.ErrorPayload{Message: "malformed sendMessage payload"})
		return
	}
	if p.SenderID != "" && p.SenderID != c.UserID {
		c.sendEvent(wire.Error, wire.ErrorPayload{Message: "sender does not match authenticated identity"})
		return
	}

	_, err := h.svc.Send(context.Background(), c.UserID, chat.SendRequest{
		ReceiverID: p.ReceiverID,
		Content:    p.Message,
		Type:       p.Type,
	})
	if err != nil {
		var ve *chat.ValidationError
		var nf *chat.NotFoundError
		switch {
		case errors.As(err, &ve), errors.As(err, &nf):
			c.sendEvent(wire.Error, wire.ErrorPayload{Message: err.Error()})
		default:
			h.logger.Error("send failed", zap.Error(err), zap.String("sender", c.UserID))
			c.sendEvent(wire.Error, wire.ErrorPayload{Message: "message could not be stored"})
		}
	}
}

// handleSendNotification relays a notification to the target user's room.
// Notifications are not persisted.
func (h *Handler) handleSendNotification(c *Client, data json.RawMessage) {
	var p wire.SendNotificationPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		c.sendEvent(wire.Error, wire.ErrorPayload{Message: "malformed sendNotification payload"})
		return
	}

	env := wire.Envelope{Event: wire.NewNotification, Data: p.Notification}
	frame, err := env.Encode()
	if err != nil {
		h.logger.Error("encode notification", zap.Error(err))
		return
	}
	h.hub.Deliver(p.UserID, frame)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
