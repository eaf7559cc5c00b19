// Package realtime owns the single long-lived duplex connection between the
// client and the server's push channel. It layers three concerns over a
// WebSocket: lifecycle (connect, disconnect, reconnection with exponential
// backoff and a circuit breaker), liveness (an application-level heartbeat
// that converts a silently dead socket into an observable disconnect), and
// messaging (a closed set of typed events plus the room subscription
// protocol used by the email-verification and password-reset flows).
//
// A Conn is an explicitly constructed service: callers create it, call
// Initialize once, and Destroy it on teardown. There is no package-level
// connection state.
//
// # What this package must NOT do
//
//   - Interpret event payloads beyond envelope decoding; the session
//     manager owns identity semantics.
//   - Open more than one underlying connection per Conn: concurrent
//     Connect calls share a single in-flight dial.
//   - Retry forever: reconnection is capped by attempt count and gated by
//     the circuit breaker.
package realtime
