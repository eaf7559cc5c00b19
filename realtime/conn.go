package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the connection lifecycle state.
type State uint8

const (
	// StateDisconnected means no socket exists.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the socket is up and the heartbeat is running.
	StateConnected
)

// String returns a short lowercase name for logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn manages the one long-lived duplex connection. Create it with New,
// call Initialize once, and Destroy on teardown. All methods are safe for
// concurrent use.
type Conn struct {
	cfg Config
	log *zap.Logger
	id  string

	breaker      *gobreaker.CircuitBreaker[struct{}]
	connectGroup singleflight.Group

	mu          sync.Mutex
	initialized bool
	state       State
	ws          *websocket.Conn
	gen         uint64
	ready       chan struct{}
	pumpCancel  context.CancelFunc
	credential  string
	memberships map[membershipKey]struct{}

	handlersMu    sync.Mutex
	handlers      map[EventKind]map[uint64]Handler
	nextHandlerID uint64

	closed       atomic.Bool
	reconnecting atomic.Bool
	done         chan struct{}
}

// New creates an unconnected Conn. The logger may be nil.
func New(cfg Config, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		cfg:         cfg.withDefaults(),
		log:         log,
		id:          uuid.NewString(),
		memberships: make(map[membershipKey]struct{}),
		handlers:    make(map[EventKind]map[uint64]Handler),
		done:        make(chan struct{}),
	}
}

// Initialize prepares the transport in a disconnected state. It is
// idempotent and never dials. Without a configured URL it logs and leaves
// the Conn unusable, mirroring how the connection layer degrades to a
// no-op outside a connected runtime.
func (c *Conn) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized || c.closed.Load() {
		return
	}
	if c.cfg.URL == "" {
		c.log.Warn("realtime disabled: no endpoint configured")
		return
	}
	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "realtime-connect",
		MaxRequests: 1,
		Timeout:     c.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.cfg.BreakerThreshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.log.Info("circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	c.ready = make(chan struct{})
	c.state = StateDisconnected
	c.initialized = true
}

// SetCredential attaches a bearer credential to subsequent dial
// handshakes. Cookie-based deployments can leave it unset.
func (c *Conn) SetCredential(credential string) {
	c.mu.Lock()
	c.credential = credential
	c.mu.Unlock()
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID returns the per-instance connection identifier sent with the dial.
func (c *Conn) ID() string { return c.id }

// Ready returns a channel that is closed once the connection is up. After
// a drop a fresh channel is installed, so callers must re-fetch it per
// wait. Queued room joins block on this instead of polling.
func (c *Conn) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.ready
}

// Connect brings the connection up. It returns immediately when already
// connected, and concurrent callers share a single in-flight dial. On
// failure the breaker records the attempt and a reconnection cycle is
// scheduled.
func (c *Conn) Connect(ctx context.Context) error {
	err := c.tryConnect(ctx)
	if err != nil && !errors.Is(err, ErrConnClosed) && !errors.Is(err, ErrNotInitialized) {
		go c.reconnectLoop()
	}
	return err
}

func (c *Conn) tryConnect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	_, err, _ := c.connectGroup.Do("connect", func() (any, error) {
		// A caller that observed the connecting state may enter a fresh
		// flight after the previous one already finished; never dial over
		// a live connection.
		c.mu.Lock()
		connected := c.state == StateConnected
		c.mu.Unlock()
		if connected {
			return nil, nil
		}
		_, err := c.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, c.dial(ctx)
		})
		return nil, err
	})
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return err
	}
	return nil
}

func (c *Conn) dial(ctx context.Context) error {
	c.mu.Lock()
	credential := c.credential
	c.mu.Unlock()

	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL+"?client_id="+c.id, &websocket.DialOptions{
		HTTPClient: c.cfg.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		c.log.Warn("dial failed", zap.String("url", c.cfg.URL), zap.Error(err))
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	pong := make(chan struct{}, 1)

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		cancelPump()
		_ = ws.Close(websocket.StatusNormalClosure, "client destroyed")
		return ErrConnClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		cancelPump()
		_ = ws.Close(websocket.StatusNormalClosure, "duplicate dial")
		return nil
	}
	c.ws = ws
	c.state = StateConnected
	c.gen++
	gen := c.gen
	c.pumpCancel = cancelPump
	close(c.ready)
	rejoin := c.pendingJoinsLocked()
	c.mu.Unlock()

	go c.readPump(pumpCtx, ws, gen, pong)
	go c.heartbeatLoop(pumpCtx, gen, pong)

	c.log.Info("connected", zap.String("url", c.cfg.URL), zap.Uint64("gen", gen))
	c.dispatch(EventConnected, nil)
	c.flushJoins(rejoin)
	return nil
}

// Disconnect tears down the active connection and stops the heartbeat. The
// circuit breaker and registered handlers are untouched, and no
// reconnection is scheduled.
func (c *Conn) Disconnect() {
	c.teardown(websocket.StatusNormalClosure, "client disconnect")
}

func (c *Conn) teardown(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.ready = make(chan struct{})
	cancel := c.pumpCancel
	c.pumpCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close(code, reason)
	}
	c.dispatch(EventDisconnected, nil)
}

// handleDrop reacts to an unexpected loss of the connection identified by
// gen. Stale generations are ignored so a read error and a heartbeat
// timeout for the same socket cannot double-fire.
func (c *Conn) handleDrop(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed.Load() || gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.ready = make(chan struct{})
	cancel := c.pumpCancel
	c.pumpCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close(websocket.StatusAbnormalClosure, "connection dropped")
	}
	c.log.Warn("connection dropped", zap.Uint64("gen", gen), zap.Error(cause))
	c.dispatch(EventDisconnected, nil)
	go c.reconnectLoop()
}

// reconnectLoop drives recovery after a drop or failed connect. With the
// circuit closed it retries on exponential backoff up to the configured
// attempt cap; with the circuit open it waits out the cooldown and permits
// exactly one half-open probe. Only one loop runs at a time.
func (c *Conn) reconnectLoop() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	for {
		if c.closed.Load() || c.State() == StateConnected {
			return
		}

		if c.breaker.State() == gobreaker.StateOpen {
			c.log.Info("circuit open, waiting out cooldown",
				zap.Duration("cooldown", c.cfg.BreakerCooldown))
			if !c.sleep(c.cfg.BreakerCooldown + 10*time.Millisecond) {
				return
			}
			if err := c.tryConnect(context.Background()); err == nil {
				return
			}
			continue
		}

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = c.cfg.ReconnectBaseDelay
		bo.MaxInterval = c.cfg.ReconnectMaxDelay
		bo.Multiplier = 2
		bo.RandomizationFactor = 0.2
		bo.MaxElapsedTime = 0
		bo.Reset()

		exhausted := true
		for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
			if !c.sleep(bo.NextBackOff()) {
				return
			}
			if c.breaker.State() == gobreaker.StateOpen {
				exhausted = false
				break
			}
			c.log.Info("reconnect attempt", zap.Int("attempt", attempt))
			if err := c.tryConnect(context.Background()); err == nil {
				return
			}
		}
		if exhausted {
			c.log.Warn("reconnect attempts exhausted; waiting for external connect")
			return
		}
	}
}

func (c *Conn) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) readPump(ctx context.Context, ws *websocket.Conn, gen uint64, pong chan struct{}) {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, ws, &env); err != nil {
			if ctx.Err() == nil {
				c.handleDrop(gen, err)
			}
			return
		}
		kind := KindFromWire(env.Event)
		switch kind {
		case EventUnknown:
			c.log.Debug("unknown event", zap.String("event", env.Event))
		case EventHeartbeatPong:
			select {
			case pong <- struct{}{}:
			default:
			}
		default:
			c.dispatch(kind, env.Data)
		}
	}
}

// heartbeatLoop probes liveness on a fixed interval. A missing ack within
// the timeout tears the connection down so the reconnection algorithm sees
// a real disconnect instead of a silently dead socket.
func (c *Conn) heartbeatLoop(ctx context.Context, gen uint64, pong chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case <-pong:
		default:
		}
		if err := c.Send(ctx, EventHeartbeatPing, nil); err != nil {
			c.handleDrop(gen, fmt.Errorf("heartbeat send: %w", err))
			return
		}

		timeout := time.NewTimer(c.cfg.HeartbeatTimeout)
		select {
		case <-pong:
			timeout.Stop()
		case <-ctx.Done():
			timeout.Stop()
			return
		case <-timeout.C:
			c.log.Warn("no heartbeat ack, tearing down connection", zap.Uint64("gen", gen))
			c.handleDrop(gen, errors.New("heartbeat timeout"))
			return
		}
	}
}

// Send writes one event to the socket. It fails with ErrNotConnected when
// the socket is down rather than queueing; queueing semantics belong to
// the room layer.
func (c *Conn) Send(ctx context.Context, kind EventKind, payload any) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.mu.Lock()
	ws := c.ws
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || ws == nil {
		return ErrNotConnected
	}

	env := &Envelope{Event: kind.String()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", kind, err)
		}
		env.Data = data
	}

	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, ws, env); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

// On registers a handler for kind and returns its unsubscribe function.
// Every registration is tracked so Destroy can remove them all.
func (c *Conn) On(kind EventKind, h Handler) (off func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextHandlerID++
	id := c.nextHandlerID
	if c.handlers[kind] == nil {
		c.handlers[kind] = make(map[uint64]Handler)
	}
	c.handlers[kind][id] = h
	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		delete(c.handlers[kind], id)
	}
}

func (c *Conn) dispatch(kind EventKind, data json.RawMessage) {
	c.handlersMu.Lock()
	hs := make([]Handler, 0, len(c.handlers[kind]))
	for _, h := range c.handlers[kind] {
		hs = append(hs, h)
	}
	c.handlersMu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

// Destroy disconnects, stops any reconnection cycle, and removes every
// registered handler and room membership. The Conn is unusable afterwards;
// repeated initialize/destroy cycles must construct a fresh Conn.
func (c *Conn) Destroy() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	c.teardown(websocket.StatusNormalClosure, "client destroyed")

	c.handlersMu.Lock()
	c.handlers = make(map[EventKind]map[uint64]Handler)
	c.handlersMu.Unlock()

	c.mu.Lock()
	c.memberships = make(map[membershipKey]struct{})
	c.initialized = false
	c.mu.Unlock()
}
