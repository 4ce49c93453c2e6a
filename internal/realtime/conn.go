package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/creatorhub/messaging/internal/bus"
	"github.com/creatorhub/messaging/internal/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures a connection.
type Options struct {
	URL   string
	Token string

	ConnectTimeout       time.Duration
	WriteWait            time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	ReconnectDelayMax    time.Duration
}

func (o *Options) fillDefaults() {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 20 * time.Second
	}
	if o.WriteWait == 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReconnectDelayMax == 0 {
		o.ReconnectDelayMax = 5 * time.Second
	}
}

// ConnectionError reports a failed connection attempt.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Handler receives the raw payload of a subscribed event.
type Handler func(data json.RawMessage)

type registration struct {
	event wire.Event
	fn    Handler
}

// attempt is a single in-flight dial that concurrent callers can await.
type attempt struct {
	done chan struct{}
	err  error
}

// Conn is an explicit client connection. Zero value is not usable; create
// one with New and share it by injection, not through package globals.
type Conn struct {
	opts    Options
	machine *machine
	logger  *zap.Logger

	mu          sync.Mutex
	ws          *websocket.Conn
	inflight    *attempt
	intentional bool

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handlers  map[int]registration
	nextID    int
}

// New creates a disconnected connection. Events published on the bus mirror
// every state change.
func New(opts Options, b *bus.Bus, logger *zap.Logger) *Conn {
	opts.fillDefaults()
	return &Conn{
		opts:     opts,
		machine:  newMachine(b),
		logger:   logger,
		handlers: make(map[int]registration),
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return c.machine.state()
}

// IsConnected reports whether the connection is currently established.
func (c *Conn) IsConnected() bool {
	return c.machine.state() == Connected
}

// Connect establishes the connection. It is idempotent: when already
// connected it returns immediately, and concurrent callers all await the
// single in-flight attempt rather than racing dials.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	if c.inflight != nil {
		a := c.inflight
		c.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &attempt{done: make(chan struct{})}
	c.inflight = a
	c.intentional = false
	c.mu.Unlock()

	_ = c.machine.transition(Connecting)
	ws, err := c.dial(ctx)

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		c.mu.Unlock()
		_ = c.machine.transition(Disconnected)
		a.err = &ConnectionError{Attempts: 1, Err: err}
		close(a.done)
		return a.err
	}
	if c.intentional {
		// Disconnect arrived while the dial was in flight.
		c.mu.Unlock()
		_ = ws.Close()
		a.err = &ConnectionError{Attempts: 1, Err: fmt.Errorf("disconnected during connect")}
		close(a.done)
		return a.err
	}
	if c.ws != nil {
		// Lost the race to another successful dial; keep the existing one.
		c.mu.Unlock()
		_ = ws.Close()
		close(a.done)
		return nil
	}
	c.ws = ws
	c.mu.Unlock()

	_ = c.machine.transition(Connected)
	go c.readLoop(ws)
	close(a.done)
	return nil
}

// Disconnect closes the connection and disables automatic reconnection.
// Safe to call in any state.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = ws.Close()
		return
	}
	// Nothing live; stop a pending reconnect cycle.
	if c.machine.state() != Disconnected {
		_ = c.machine.transition(Disconnected)
	}
}

// Send emits an event. A send on a disconnected connection first attempts
// to connect, so callers need no separate connect step.
func (c *Conn) Send(ctx context.Context, event wire.Event, payload any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		if err := c.Connect(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		ws = c.ws
		c.mu.Unlock()
		if ws == nil {
			return &ConnectionError{Attempts: 1, Err: fmt.Errorf("connection lost before send")}
		}
	}

	env, err := wire.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := env.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// On registers a handler for an event and returns an id for Off. Multiple
// handlers per event are allowed.
func (c *Conn) On(event wire.Event, fn Handler) int {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.nextID++
	c.handlers[c.nextID] = registration{event: event, fn: fn}
	return c.nextID
}

// Off removes a previously registered handler.
func (c *Conn) Off(id int) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.handlers, id)
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	ws, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	return ws, nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			break
		}
		env, err := wire.Decode(frame)
		if err != nil {
			c.logger.Warn("unreadable frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}

	c.mu.Lock()
	if c.ws != ws {
		// A newer connection replaced this one.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	intentional := c.intentional
	c.mu.Unlock()

	if intentional {
		_ = c.machine.transition(Disconnected)
		return
	}
	_ = c.machine.transition(Reconnecting)
	go c.reconnect()
}

// reconnect retries after an unintentional drop with a linearly growing,
// capped delay. An explicit Disconnect at any point stops the cycle.
func (c *Conn) reconnect() {
	for i := 1; i <= c.opts.MaxReconnectAttempts; i++ {
		delay := time.Duration(i) * c.opts.ReconnectDelay
		if delay > c.opts.ReconnectDelayMax {
			delay = c.opts.ReconnectDelayMax
		}
		time.Sleep(delay)

		c.mu.Lock()
		if c.intentional || c.ws != nil {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.machine.transition(Connecting); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
		ws, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", i),
				zap.Int("max", c.opts.MaxReconnectAttempts),
				zap.Error(err))
			_ = c.machine.transition(Reconnecting)
			continue
		}

		c.mu.Lock()
		if c.intentional {
			c.mu.Unlock()
			_ = ws.Close()
			_ = c.machine.transition(Disconnected)
			return
		}
		c.ws = ws
		c.mu.Unlock()

		_ = c.machine.transition(Connected)
		c.logger.Info("reconnected", zap.Int("attempt", i))
		go c.readLoop(ws)
		return
	}

	c.logger.Error("reconnect attempts exhausted",
		zap.Int("max", c.opts.MaxReconnectAttempts))
	_ = c.machine.transition(Disconnected)
}

// dispatch fans an inbound event out to its handlers in registration order.
// A panicking handler is isolated so the remaining handlers and the read
// loop keep running.
func (c *Conn) dispatch(env wire.Envelope) {
	c.handlerMu.RLock()
	var ids []int
	for id, reg := range c.handlers {
		if reg.event == env.Event {
			ids = append(ids, id)
		}
	}
	// Ids are assigned monotonically in On, so sorted ids are registration
	// order.
	sort.Ints(ids)
	fns := make([]Handler, len(ids))
	for i, id := range ids {
		fns[i] = c.handlers[id].fn
	}
	c.handlerMu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("event handler panicked",
						zap.String("event", string(env.Event)),
						zap.Any("panic", r))
				}
			}()
			fn(env.Data)
		}()
	}
}
