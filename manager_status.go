package authsync

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type meResponse struct {
	Authenticated bool     `json:"authenticated"`
	User          *Session `json:"user"`
}

// CheckStatus is the bootstrap identity fetch. Only the first invocation
// performs work: concurrent callers during startup share one fetch, and
// later calls return the installed state without touching the network.
// A transport failure leaves the guard unset so a later call can retry.
func (m *Manager) CheckStatus(ctx context.Context) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if m.statusDone.Load() {
		return m.Session(), nil
	}

	v, err, _ := m.statusGroup.Do("status", func() (any, error) {
		resp, err := m.Do(ctx, Request{Method: http.MethodGet, Path: "/users/me"})
		if err != nil {
			return nil, err
		}
		m.statusDone.Store(true)

		var body meResponse
		if resp.OK() && resp.Decode(&body) == nil && body.Authenticated {
			if m.installSession(body.User) {
				m.joinOwnVerificationRoom(body.User.ID)
			}
		}
		return m.Session(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Logout notifies the server best-effort, then unconditionally clears the
// local session, the response cache, and session-scoped client state. A
// failed network call never leaves local identity behind.
func (m *Manager) Logout(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	defer m.clearSession("logout")

	resp, err := m.send(ctx, Request{Method: http.MethodPost, Path: "/auth/logout"})
	if err != nil {
		m.log.Warn("logout notification failed", zap.Error(err))
		return nil
	}
	if !resp.OK() {
		m.log.Warn("logout rejected by server", zap.Int("status", resp.StatusCode))
	}
	return nil
}

// handleForcedLogout reacts to a server-pushed logout exactly like Logout
// followed by navigation to the unauthenticated entry point, regardless of
// which part of the application the signal reached first.
func (m *Manager) handleForcedLogout(reason, message string) {
	m.metrics.Inc(MetricForcedLogout)
	m.log.Warn("forced logout", zap.String("reason", reason))
	m.clearSession("forced logout")
	if m.conn != nil {
		m.conn.Disconnect()
	}
	if hook := m.config.Hooks.OnForcedLogout; hook != nil {
		hook(reason, message)
	}
}

// UpdatePreferences saves locale/theme server-side and then replaces the
// installed identity wholesale with a fresh fetch, which is the only way
// identity state changes outside login/logout.
func (m *Manager) UpdatePreferences(ctx context.Context, p Preferences) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if !m.Authenticated() {
		return nil, ErrNoSession
	}

	resp, err := m.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   "/users/me/preferences",
		Body:   p,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return m.Session(), nil
	}

	if p.Locale != "" {
		if err := m.prefs.SetLocale(p.Locale); err != nil {
			m.log.Warn("persisting locale failed", zap.Error(err))
		}
	}

	fresh, err := m.Do(ctx, Request{Method: http.MethodGet, Path: "/users/me", NoCache: true})
	if err != nil {
		return m.Session(), nil
	}
	var body meResponse
	if fresh.OK() && fresh.Decode(&body) == nil && body.Authenticated {
		m.installSession(body.User)
	}
	return m.Session(), nil
}
