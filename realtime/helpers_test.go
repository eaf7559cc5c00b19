package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// fakeServer is the in-process stand-in for the push endpoint. It records
// every inbound envelope, optionally answers heartbeats, can reject the
// first N handshakes, and can drop the live connection on demand.
type fakeServer struct {
	t               *testing.T
	url             string
	attempts        atomic.Int64
	accepts         atomic.Int64
	rejectFirst     int64
	answerHeartbeat bool
	handshakeDelay  time.Duration

	inbound   chan Envelope
	push      chan Envelope
	closeConn chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:               t,
		answerHeartbeat: true,
		inbound:         make(chan Envelope, 64),
		push:            make(chan Envelope, 8),
		closeConn:       make(chan struct{}, 1),
	}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	fs.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return fs
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	n := fs.attempts.Add(1)
	if n <= fs.rejectFirst {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if fs.handshakeDelay > 0 {
		time.Sleep(fs.handshakeDelay)
	}
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	fs.accepts.Add(1)
	ctx := r.Context()

	go func() {
		for {
			var env Envelope
			if err := wsjson.Read(ctx, c, &env); err != nil {
				return
			}
			if env.Event == EventHeartbeatPing.String() && fs.answerHeartbeat {
				_ = wsjson.Write(ctx, c, Envelope{Event: EventHeartbeatPong.String()})
			}
			select {
			case fs.inbound <- env:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-fs.push:
			_ = wsjson.Write(ctx, c, env)
		case <-fs.closeConn:
			_ = c.Close(websocket.StatusGoingAway, "server drop")
			return
		}
	}
}

func (fs *fakeServer) waitEnvelope(t *testing.T, d time.Duration) (Envelope, bool) {
	t.Helper()
	select {
	case env := <-fs.inbound:
		return env, true
	case <-time.After(d):
		return Envelope{}, false
	}
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		DialTimeout:          2 * time.Second,
		WriteTimeout:         time.Second,
		HeartbeatInterval:    time.Second,
		HeartbeatTimeout:     500 * time.Millisecond,
		ReconnectBaseDelay:   10 * time.Millisecond,
		ReconnectMaxDelay:    40 * time.Millisecond,
		MaxReconnectAttempts: 5,
		BreakerThreshold:     5,
		BreakerCooldown:      150 * time.Millisecond,
	}
}

func newTestConn(t *testing.T, cfg Config) *Conn {
	t.Helper()
	c := New(cfg, zap.NewNop())
	c.Initialize()
	t.Cleanup(c.Destroy)
	return c
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
