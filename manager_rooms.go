package authsync

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/driftlock/authsync/realtime"
)

// Connect brings up the realtime connection. Safe to call repeatedly;
// concurrent calls share one attempt.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if m.conn == nil {
		return ErrRealtimeDisabled
	}
	return m.conn.Connect(ctx)
}

// Disconnect tears down the realtime connection without touching the
// session.
func (m *Manager) Disconnect() {
	if m.conn != nil {
		m.conn.Disconnect()
	}
}

// JoinPendingVerificationRoom subscribes to verification completion for
// email; the join is queued when the connection is not yet up.
func (m *Manager) JoinPendingVerificationRoom(ctx context.Context, email string) error {
	if m.conn == nil {
		return ErrRealtimeDisabled
	}
	return m.conn.JoinPendingVerificationRoom(ctx, email)
}

// LeavePendingVerificationRoom drops the subscription, best-effort.
func (m *Manager) LeavePendingVerificationRoom(ctx context.Context, email string) error {
	if m.conn == nil {
		return ErrRealtimeDisabled
	}
	return m.conn.LeavePendingVerificationRoom(ctx, email)
}

// JoinPasswordResetRoom subscribes to password-reset completion for email.
func (m *Manager) JoinPasswordResetRoom(ctx context.Context, email string) error {
	if m.conn == nil {
		return ErrRealtimeDisabled
	}
	return m.conn.JoinPasswordResetRoom(ctx, email)
}

// LeavePasswordResetRoom drops the subscription, best-effort.
func (m *Manager) LeavePasswordResetRoom(ctx context.Context, email string) error {
	if m.conn == nil {
		return ErrRealtimeDisabled
	}
	return m.conn.LeavePasswordResetRoom(ctx, email)
}

func (m *Manager) joinOwnVerificationRoom(userID string) {
	if m.conn == nil || userID == "" {
		return
	}
	ctx, cancel := m.requestContext()
	defer cancel()
	if err := m.conn.JoinVerificationRoom(ctx, userID); err != nil {
		m.log.Debug("verification room join deferred", zap.Error(err))
	}
}

// wireRealtime registers the manager's handlers on the connection and
// keeps their unsubscribe functions for Close. Transport events that
// matter beyond this manager are republished on the signal hub.
func (m *Manager) wireRealtime() {
	m.unsubs = append(m.unsubs,
		m.conn.On(realtime.EventEmailVerified, m.onEmailVerified),
		m.conn.On(realtime.EventEmailVerificationFailed, func(json.RawMessage) {
			m.log.Warn("email verification failed event received")
		}),
		m.conn.On(realtime.EventForceLogout, func(data json.RawMessage) {
			var p realtime.ForceLogoutPayload
			_ = json.Unmarshal(data, &p)
			m.hub.Publish(context.Background(), Signal{
				Kind:    SignalForcedLogout,
				Reason:  p.Reason,
				Message: p.Message,
			})
		}),
		m.conn.On(realtime.EventRateLimitExceeded, func(data json.RawMessage) {
			var p realtime.RateLimitPayload
			_ = json.Unmarshal(data, &p)
			m.hub.Publish(context.Background(), Signal{
				Kind:    SignalRateLimited,
				Reason:  p.Type,
				Message: p.Message,
			})
		}),
		m.conn.On(realtime.EventConnected, func(json.RawMessage) {
			m.hub.Publish(context.Background(), Signal{Kind: SignalConnectivity, Reason: "connected"})
		}),
		m.conn.On(realtime.EventDisconnected, func(json.RawMessage) {
			m.hub.Publish(context.Background(), Signal{Kind: SignalConnectivity, Reason: "disconnected"})
		}),
	)
}

// wireSignals subscribes the manager to the process-wide signals it must
// act on. Going through the hub rather than the connection directly means
// a forced logout raised anywhere in the process takes the same path.
func (m *Manager) wireSignals() {
	forced, offForced := m.hub.Subscribe(SignalForcedLogout)
	limited, offLimited := m.hub.Subscribe(SignalRateLimited)
	m.unsubs = append(m.unsubs, offForced, offLimited)

	go func() {
		for {
			select {
			case <-m.done:
				return
			case s := <-forced:
				m.handleForcedLogout(s.Reason, s.Message)
			case s := <-limited:
				m.log.Warn("rate limited", zap.String("type", s.Reason), zap.String("message", s.Message))
				if hook := m.config.Hooks.OnRateLimited; hook != nil {
					hook(s.Reason, s.Message)
				}
			}
		}
	}()
}

// onEmailVerified installs the identity carried by a verification
// completion event, which typically originates in another tab or device.
// The usual installation rules apply; the optional OnVerified hook then
// drives any role-based redirect.
func (m *Manager) onEmailVerified(data json.RawMessage) {
	var p realtime.EmailVerifiedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.log.Warn("emailVerified payload decode failed", zap.Error(err))
		return
	}
	if !p.Success || len(p.User) == 0 {
		return
	}
	var s Session
	if err := json.Unmarshal(p.User, &s); err != nil {
		m.log.Warn("emailVerified user decode failed", zap.Error(err))
		return
	}
	if !m.installSession(&s) {
		return
	}
	m.metrics.Inc(MetricLoginSuccess)
	m.joinOwnVerificationRoom(s.ID)
	if err := m.conn.LeavePendingVerificationRoom(context.Background(), s.Email); err != nil {
		m.log.Debug("leaving pending verification room failed", zap.Error(err))
	}
	if hook := m.config.Hooks.OnVerified; hook != nil {
		hook(m.Session())
	}
}
