package authsync

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/driftlock/authsync/cache"
	"github.com/driftlock/authsync/realtime"
)

// Manager holds the client's authenticated identity and keeps it
// consistent across consumers, tabs, and the realtime channel. Construct
// it through Builder.Build; all methods are safe for concurrent use.
type Manager struct {
	config  Config
	log     *zap.Logger
	http    *http.Client
	cache   *cache.Store[*Response]
	conn    *realtime.Conn
	hub     *SignalHub
	ownHub  bool
	metrics *Metrics
	prefs   PreferenceStore

	mu          sync.RWMutex
	session     *Session
	watchers    map[uint64]chan *Session
	nextWatcher uint64

	refreshGroup singleflight.Group
	statusGroup  singleflight.Group
	statusDone   atomic.Bool

	renewMu   sync.Mutex
	renewStop chan struct{}

	unsubs []func()
	done   chan struct{}
	closed atomic.Bool
}

// Session returns a copy of the current identity, or nil when logged out.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

// Authenticated reports whether a session is installed.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// Watch returns a channel that receives the new session after every
// install or clear (nil means logged out), plus the cancel function.
// Consumers that lag lose intermediate states, never the latest one.
func (m *Manager) Watch() (<-chan *Session, func()) {
	ch := make(chan *Session, 4)
	m.mu.Lock()
	m.nextWatcher++
	id := m.nextWatcher
	m.watchers[id] = ch
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Metrics exposes the manager's counters.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// Signals exposes the process-wide signal hub for components that need to
// react to transport events without a dependency on the manager.
func (m *Manager) Signals() *SignalHub { return m.hub }

// Realtime exposes the connection manager, or nil when the realtime layer
// is disabled.
func (m *Manager) Realtime() *realtime.Conn { return m.conn }

// installSession makes s the active identity. An unverified identity is
// never installed, whatever endpoint it came from; the caller learns this
// from the return value.
func (m *Manager) installSession(s *Session) bool {
	if s == nil || !s.Verified {
		if s != nil {
			m.log.Warn("refusing to install unverified identity", zap.String("email", s.Email))
		}
		return false
	}
	m.mu.Lock()
	m.session = s.clone()
	m.notifyLocked()
	m.mu.Unlock()

	m.metrics.Inc(MetricSessionInstalled)
	m.startRenewal()
	if s.Preferences != nil && s.Preferences.Locale != "" {
		if err := m.prefs.SetLocale(s.Preferences.Locale); err != nil {
			m.log.Warn("persisting locale failed", zap.Error(err))
		}
	}
	return true
}

// clearSession tears down local identity state: session, renewal timer,
// response cache, and session-scoped preference state. It never touches
// the network.
func (m *Manager) clearSession(cause string) {
	m.stopRenewal()

	m.mu.Lock()
	had := m.session != nil
	m.session = nil
	m.notifyLocked()
	m.mu.Unlock()

	m.cache.Invalidate("")
	if err := m.prefs.Clear(); err != nil {
		m.log.Warn("clearing preference store failed", zap.Error(err))
	}
	if had {
		m.metrics.Inc(MetricSessionCleared)
		m.log.Info("session cleared", zap.String("cause", cause))
	}
}

// notifyLocked pushes the current session to every watcher. Callers hold
// m.mu. Sends are non-blocking after making room for the latest value, so
// every watcher always observes the final state.
func (m *Manager) notifyLocked() {
	for _, ch := range m.watchers {
		s := m.session.clone()
		select {
		case ch <- s:
		default:
			// Full buffer: drop the oldest value so the latest state
			// always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (m *Manager) startRenewal() {
	if m.config.Refresh.Disabled {
		return
	}
	m.renewMu.Lock()
	defer m.renewMu.Unlock()
	if m.renewStop != nil {
		return
	}
	stop := make(chan struct{})
	m.renewStop = stop
	go m.renewLoop(stop)
}

func (m *Manager) stopRenewal() {
	m.renewMu.Lock()
	defer m.renewMu.Unlock()
	if m.renewStop != nil {
		close(m.renewStop)
		m.renewStop = nil
	}
}

// renewLoop proactively refreshes the credential while a session is
// installed, undercutting its lifetime so callers never present an
// expired-but-not-yet-401 cookie.
func (m *Manager) renewLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.config.Refresh.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-m.doneCh():
			return
		case <-ticker.C:
			if !m.Authenticated() {
				return
			}
			ctx, cancel := m.requestContext()
			ok := m.Refresh(ctx)
			cancel()
			if !ok {
				m.log.Warn("background refresh failed")
			}
		}
	}
}

func (m *Manager) doneCh() <-chan struct{} { return m.done }

// Close releases everything the manager owns: the renewal timer, realtime
// handlers and connection, signal subscriptions, and watcher registry.
// The session itself is left untouched server-side.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	close(m.done)
	m.stopRenewal()

	for _, off := range m.unsubs {
		off()
	}
	m.unsubs = nil

	if m.conn != nil {
		m.conn.Destroy()
	}
	if m.ownHub {
		m.hub.Close()
	}

	m.mu.Lock()
	m.watchers = make(map[uint64]chan *Session)
	m.mu.Unlock()
}
