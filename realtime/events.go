package realtime

import "encoding/json"

// EventKind identifies one message kind on the duplex channel. The set is
// closed: unknown wire names decode to EventUnknown and are dropped after a
// debug log, never dispatched.
type EventKind uint8

const (
	// EventUnknown is the zero kind; it is never dispatched.
	EventUnknown EventKind = iota

	// Outbound kinds.

	// EventHeartbeatPing is the liveness probe sent on the heartbeat
	// interval.
	EventHeartbeatPing
	// EventJoinPendingVerificationRoom subscribes to verification
	// completion events for an email address.
	EventJoinPendingVerificationRoom
	// EventLeavePendingVerificationRoom unsubscribes from a pending
	// verification room.
	EventLeavePendingVerificationRoom
	// EventJoinPasswordResetRoom subscribes to password-reset completion
	// events for an email address.
	EventJoinPasswordResetRoom
	// EventLeavePasswordResetRoom unsubscribes from a password-reset room.
	EventLeavePasswordResetRoom
	// EventJoinVerificationRoom subscribes to verification events for an
	// authenticated user id.
	EventJoinVerificationRoom

	// Inbound kinds.

	// EventHeartbeatPong acknowledges a heartbeat ping.
	EventHeartbeatPong
	// EventEmailVerified reports that the address was verified, possibly
	// from another tab or device.
	EventEmailVerified
	// EventEmailVerificationFailed reports a failed verification attempt.
	EventEmailVerificationFailed
	// EventPendingVerificationRoomJoined acknowledges a room join.
	EventPendingVerificationRoomJoined
	// EventPendingVerificationRoomLeft acknowledges a room leave.
	EventPendingVerificationRoomLeft
	// EventPasswordResetRoomJoined acknowledges a room join.
	EventPasswordResetRoomJoined
	// EventPasswordResetRoomLeft acknowledges a room leave.
	EventPasswordResetRoomLeft
	// EventForceLogout instructs the client to discard its session.
	EventForceLogout
	// EventRateLimitExceeded reports server-side throttling of this client.
	EventRateLimitExceeded

	// Local kinds, emitted by the Conn itself rather than read off the
	// wire.

	// EventConnected fires after a successful connect or reconnect.
	EventConnected
	// EventDisconnected fires when the connection drops for any reason.
	EventDisconnected
)

var kindNames = map[EventKind]string{
	EventHeartbeatPing:                 "heartbeat",
	EventJoinPendingVerificationRoom:   "joinPendingVerificationRoom",
	EventLeavePendingVerificationRoom:  "leavePendingVerificationRoom",
	EventJoinPasswordResetRoom:         "joinPasswordResetRoom",
	EventLeavePasswordResetRoom:        "leavePasswordResetRoom",
	EventJoinVerificationRoom:          "joinVerificationRoom",
	EventHeartbeatPong:                 "heartbeatAck",
	EventEmailVerified:                 "emailVerified",
	EventEmailVerificationFailed:       "emailVerificationFailed",
	EventPendingVerificationRoomJoined: "pendingVerificationRoomJoined",
	EventPendingVerificationRoomLeft:   "pendingVerificationRoomLeft",
	EventPasswordResetRoomJoined:       "passwordResetRoomJoined",
	EventPasswordResetRoomLeft:         "passwordResetRoomLeft",
	EventForceLogout:                   "forceLogout",
	EventRateLimitExceeded:             "RATE_LIMIT_EXCEEDED",
	EventConnected:                     "connect",
	EventDisconnected:                  "disconnect",
}

var wireKinds = func() map[string]EventKind {
	m := make(map[string]EventKind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire name of the kind.
func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindFromWire maps a wire event name to its kind. Unrecognized names map
// to EventUnknown.
func KindFromWire(name string) EventKind {
	return wireKinds[name]
}

// Envelope is the JSON frame exchanged on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomPayload addresses a room derived from an email address.
type RoomPayload struct {
	Email string `json:"email"`
}

// UserRoomPayload addresses the verification room of an authenticated user.
type UserRoomPayload struct {
	UserID string `json:"userId"`
}

// EmailVerifiedPayload carries a verification completion. User and Tokens
// are opaque here; the session manager decodes them against its own types.
type EmailVerifiedPayload struct {
	Success bool            `json:"success"`
	User    json.RawMessage `json:"user,omitempty"`
	Tokens  json.RawMessage `json:"tokens,omitempty"`
}

// ForceLogoutPayload explains a server-initiated logout.
type ForceLogoutPayload struct {
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// RateLimitPayload reports server-side throttling.
type RateLimitPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Handler consumes the raw payload of one event. Handlers run on the read
// pump goroutine and must not block.
type Handler func(data json.RawMessage)
