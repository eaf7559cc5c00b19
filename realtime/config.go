package realtime

import (
	"net/http"
	"time"
)

// Config tunes the connection lifecycle. Zero values fall back to the
// defaults below.
type Config struct {
	// URL is the WebSocket endpoint. When empty, Initialize logs and
	// leaves the Conn unusable; every other operation then reports
	// ErrNotInitialized.
	URL string

	// HTTPClient performs the dial handshake. Sharing the session
	// manager's client lets the handshake carry the same auth cookies.
	HTTPClient *http.Client

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// HeartbeatInterval is the gap between liveness probes once
	// connected; HeartbeatTimeout bounds the wait for the ack.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// ReconnectBaseDelay seeds the exponential backoff after an
	// unexpected drop; ReconnectMaxDelay caps each wait and
	// MaxReconnectAttempts caps one backoff burst before the Conn goes
	// idle until the next external Connect.
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	// BreakerThreshold consecutive failures open the circuit;
	// BreakerCooldown must elapse before the single half-open probe.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

const (
	defaultDialTimeout       = 10 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultHeartbeatInterval = 60 * time.Second
	defaultHeartbeatTimeout  = 10 * time.Second
	defaultReconnectBase     = time.Second
	defaultReconnectMax      = 30 * time.Second
	defaultReconnectAttempts = 5
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = defaultReconnectBase
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = defaultReconnectMax
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultReconnectAttempts
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = defaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}
