package hub

import (
	"time"

	"github.com/creatorhub/messaging/internal/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Timings tunes the per-connection pumps.
type Timings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultTimings matches the values the platform clients expect.
func DefaultTimings() Timings {
	return Timings{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Client is one live connection bound to a single room.
type Client struct {
	UserID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	timings Timings
	logger  *zap.Logger
}

func newClient(userID string, h *Hub, conn *websocket.Conn, t Timings, logger *zap.Logger) *Client {
	return &Client{
		UserID:  userID,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		timings: t,
		logger:  logger,
	}
}

// readPump reads frames until the connection drops, handing each decoded
// envelope to the handler. Leaving the loop removes room membership.
func (c *Client) readPump(handle func(*Client, wire.Envelope)) {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.timings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timings.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err), zap.String("room", c.UserID))
			}
			return
		}

		env, err := wire.Decode(frame)
		if err != nil {
			c.logger.Warn("unreadable frame", zap.Error(err), zap.String("room", c.UserID))
			continue
		}
		handle(c, env)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.timings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.timings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues an envelope for this single connection.
func (c *Client) sendEvent(event wire.Event, data any) {
	env, err := wire.NewEnvelope(event, data)
	if err != nil {
		c.logger.Error("encode event", zap.Error(err), zap.String("event", string(event)))
		return
	}
	frame, err := env.Encode()
	if err != nil {
		c.logger.Error("encode frame", zap.Error(err), zap.String("event", string(event)))
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}
