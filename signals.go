package authsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SignalKind identifies a process-wide signal.
type SignalKind uint8

const (
	// SignalForcedLogout means the server invalidated the session; local
	// state has been or is being cleared.
	SignalForcedLogout SignalKind = iota
	// SignalRateLimited means the server is throttling this client.
	SignalRateLimited
	// SignalConnectivity reports connection state transitions for
	// consumers that want a degraded-connectivity indicator.
	SignalConnectivity
)

// Signal is one process-wide event re-emitted from the transport layer so
// components without a direct dependency on the connection can react.
type Signal struct {
	Kind    SignalKind
	Reason  string
	Message string
	At      time.Time
}

// SignalHub fans transport-level signals out to any number of
// subscribers through a single buffered queue. Delivery to a subscriber is
// non-blocking: a full subscriber channel drops the signal and increments
// the dropped counter, so one stuck consumer cannot stall the hub.
type SignalHub struct {
	cfg  SignalConfig
	ch   chan Signal
	done chan struct{}
	wg   sync.WaitGroup

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	mu     sync.Mutex
	subs   map[SignalKind]map[uint64]chan Signal
	nextID uint64
}

// NewSignalHub creates a running hub.
func NewSignalHub(cfg SignalConfig) *SignalHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	h := &SignalHub{
		cfg:  cfg,
		ch:   make(chan Signal, cfg.BufferSize),
		done: make(chan struct{}),
		subs: make(map[SignalKind]map[uint64]chan Signal),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *SignalHub) run() {
	defer h.wg.Done()
	for {
		select {
		case s := <-h.ch:
			h.deliver(s)
		case <-h.done:
			for {
				select {
				case s := <-h.ch:
					h.deliver(s)
				default:
					return
				}
			}
		}
	}
}

func (h *SignalHub) deliver(s Signal) {
	h.mu.Lock()
	targets := make([]chan Signal, 0, len(h.subs[s.Kind]))
	for _, ch := range h.subs[s.Kind] {
		targets = append(targets, ch)
	}
	h.mu.Unlock()
	for _, ch := range targets {
		select {
		case ch <- s:
		default:
			h.dropped.Add(1)
		}
	}
}

// Publish enqueues a signal. With DropIfFull set a full queue drops the
// signal instead of blocking the publisher.
func (h *SignalHub) Publish(ctx context.Context, s Signal) {
	if h == nil || h.closed.Load() {
		return
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if h.cfg.DropIfFull {
		select {
		case h.ch <- s:
		case <-h.done:
		default:
			h.dropped.Add(1)
		}
		return
	}

	select {
	case h.ch <- s:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Subscribe returns a channel receiving signals of the given kind and the
// unsubscribe function. The channel is buffered; slow consumers lose
// signals rather than blocking the hub.
func (h *SignalHub) Subscribe(kind SignalKind) (<-chan Signal, func()) {
	ch := make(chan Signal, 4)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[uint64]chan Signal)
	}
	h.subs[kind][id] = ch
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs[kind], id)
		h.mu.Unlock()
	}
}

// Dropped reports how many signals were discarded due to full buffers.
func (h *SignalHub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close drains the queue, delivers what is left, and removes all
// subscriptions.
func (h *SignalHub) Close() {
	if h == nil {
		return
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.done)
		h.wg.Wait()
		h.mu.Lock()
		h.subs = make(map[SignalKind]map[uint64]chan Signal)
		h.mu.Unlock()
	})
}
