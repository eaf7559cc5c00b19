package authsync

import (
	"fmt"
	"time"

	"github.com/driftlock/authsync/realtime"
)

// Config collects every tunable of the manager. Build validates it once;
// after that it is immutable.
type Config struct {
	HTTP     HTTPConfig
	Refresh  RefreshConfig
	Cache    CacheConfig
	Realtime realtime.Config
	Signals  SignalConfig
	Hooks    HooksConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig governs the REST side of the manager. All authenticated
// calls rely on the HTTP client's cookie jar; no token is handled by
// client logic.
type HTTPConfig struct {
	// BaseURL is the API origin, e.g. "https://api.example.com".
	BaseURL string
	// Timeout bounds each request, including the silent refresh-and-retry
	// leg.
	Timeout time.Duration
	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig governs credential renewal. The interval must undercut the
// credential lifetime so a valid cookie is always presented; with the
// usual 15-minute credential the 14-minute default renews just in time.
type RefreshConfig struct {
	// Interval is the proactive renewal period while a session is
	// installed.
	Interval time.Duration
	// Disabled turns off the background renewal timer; Refresh stays
	// available for explicit calls.
	Disabled bool
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig governs response memoization for idempotent reads.
type CacheConfig struct {
	// TTL is the freshness window; entries older than this are treated
	// as absent.
	TTL time.Duration
	// Disabled bypasses the cache entirely.
	Disabled bool
}

/*
====================================
SIGNAL CONFIG
====================================
*/

// SignalConfig tunes the process-wide signal hub that re-emits transport
// events (forced logout, rate limiting, connectivity changes) to
// components that are not direct consumers of the connection.
type SignalConfig struct {
	// BufferSize is the hub's queue depth.
	BufferSize int
	// DropIfFull drops signals instead of blocking publishers when the
	// queue is full. Dropped signals are counted.
	DropIfFull bool
}

/*
====================================
HOOKS CONFIG
====================================
*/

// HooksConfig carries the callbacks through which the embedding
// application reacts to session transitions. All hooks are optional and
// are invoked outside the manager's locks.
type HooksConfig struct {
	// OnForcedLogout runs after a server-pushed logout has cleared local
	// state; the application navigates to its unauthenticated entry
	// point here.
	OnForcedLogout func(reason, message string)
	// OnVerified runs when a verification completion event installs a
	// session, e.g. to drive a role-based redirect.
	OnVerified func(s *Session)
	// OnRateLimited runs when the server signals throttling.
	OnRateLimited func(kind, message string)
}

const (
	defaultHTTPTimeout     = 15 * time.Second
	defaultRefreshInterval = 14 * time.Minute
	defaultCacheTTL        = 30 * time.Second
	defaultSignalBuffer    = 64
)

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout: defaultHTTPTimeout,
		},
		Refresh: RefreshConfig{
			Interval: defaultRefreshInterval,
		},
		Cache: CacheConfig{
			TTL: defaultCacheTTL,
		},
		Signals: SignalConfig{
			BufferSize: defaultSignalBuffer,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.HTTP.BaseURL == "" {
		return ErrBaseURLRequired
	}
	if cfg.Refresh.Interval <= 0 {
		return fmt.Errorf("authsync: refresh interval must be positive, got %s", cfg.Refresh.Interval)
	}
	if cfg.Signals.BufferSize <= 0 {
		return fmt.Errorf("authsync: signal buffer must be positive, got %d", cfg.Signals.BufferSize)
	}
	return nil
}
