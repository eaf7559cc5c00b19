package realtime

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// The room subscription protocol scopes server pushes to narrow topics
// derived from an email address (pending verification, password reset) or
// an authenticated user id. Joins are optimistic: requested before the
// connection is up they are queued and flushed exactly once when it
// becomes ready, and re-sent after every reconnect so a flapping socket
// does not silently drop a subscription. Leaves are best-effort and only
// sent while connected.

type roomKind uint8

const (
	roomPendingVerification roomKind = iota
	roomPasswordReset
	roomUserVerification
)

type membershipKey struct {
	kind   roomKind
	target string
}

// NormalizeEmail lowercases and trims an address so both sides derive the
// same room name regardless of how the user typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// JoinPendingVerificationRoom subscribes to verification completion events
// for email. Safe to call before Connect; the join is queued until ready.
func (c *Conn) JoinPendingVerificationRoom(ctx context.Context, email string) error {
	return c.joinRoom(ctx, roomPendingVerification, NormalizeEmail(email))
}

// LeavePendingVerificationRoom drops the subscription. Best-effort: when
// disconnected the membership is simply forgotten.
func (c *Conn) LeavePendingVerificationRoom(ctx context.Context, email string) error {
	return c.leaveRoom(ctx, roomPendingVerification, NormalizeEmail(email))
}

// JoinPasswordResetRoom subscribes to password-reset completion events for
// email.
func (c *Conn) JoinPasswordResetRoom(ctx context.Context, email string) error {
	return c.joinRoom(ctx, roomPasswordReset, NormalizeEmail(email))
}

// LeavePasswordResetRoom drops the subscription.
func (c *Conn) LeavePasswordResetRoom(ctx context.Context, email string) error {
	return c.leaveRoom(ctx, roomPasswordReset, NormalizeEmail(email))
}

// JoinVerificationRoom subscribes to verification events for an
// authenticated user id.
func (c *Conn) JoinVerificationRoom(ctx context.Context, userID string) error {
	return c.joinRoom(ctx, roomUserVerification, userID)
}

func (c *Conn) joinRoom(ctx context.Context, kind roomKind, target string) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.memberships[membershipKey{kind: kind, target: target}] = struct{}{}
	connected := c.state == StateConnected
	c.mu.Unlock()

	// Not connected: the membership is now queued and the connect path
	// flushes it under the same mutex, so exactly one join goes out.
	if !connected {
		return nil
	}
	return c.Send(ctx, joinEvent(kind), roomPayload(kind, target))
}

func (c *Conn) leaveRoom(ctx context.Context, kind roomKind, target string) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	delete(c.memberships, membershipKey{kind: kind, target: target})
	connected := c.state == StateConnected
	c.mu.Unlock()

	event := leaveEvent(kind)
	if !connected || event == EventUnknown {
		return nil
	}
	return c.Send(ctx, event, roomPayload(kind, target))
}

type queuedJoin struct {
	kind    EventKind
	payload any
}

// pendingJoinsLocked snapshots the memberships to (re)announce. Caller
// holds c.mu, which is what makes the queue-then-flush handoff race-free.
func (c *Conn) pendingJoinsLocked() []queuedJoin {
	joins := make([]queuedJoin, 0, len(c.memberships))
	for key := range c.memberships {
		joins = append(joins, queuedJoin{
			kind:    joinEvent(key.kind),
			payload: roomPayload(key.kind, key.target),
		})
	}
	return joins
}

func (c *Conn) flushJoins(joins []queuedJoin) {
	for _, j := range joins {
		if err := c.Send(context.Background(), j.kind, j.payload); err != nil {
			c.log.Warn("room join flush failed", zap.String("event", j.kind.String()), zap.Error(err))
		}
	}
}

func joinEvent(kind roomKind) EventKind {
	switch kind {
	case roomPasswordReset:
		return EventJoinPasswordResetRoom
	case roomUserVerification:
		return EventJoinVerificationRoom
	default:
		return EventJoinPendingVerificationRoom
	}
}

func leaveEvent(kind roomKind) EventKind {
	switch kind {
	case roomPasswordReset:
		return EventLeavePasswordResetRoom
	case roomPendingVerification:
		return EventLeavePendingVerificationRoom
	default:
		// The verification room has no leave event on the wire; its
		// membership ends with the session.
		return EventUnknown
	}
}

func roomPayload(kind roomKind, target string) any {
	if kind == roomUserVerification {
		return UserRoomPayload{UserID: target}
	}
	return RoomPayload{Email: target}
}
