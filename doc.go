// Package authsync keeps a client's authenticated identity consistent
// across tabs, devices, and a long-lived realtime connection, while the
// short-lived access credential is renewed silently in the background.
//
// The [Manager] is the single owner of session state. It performs the
// login, two-factor, registration, and logout flows against the REST API,
// serializes credential refresh so concurrent callers never race, wraps
// authenticated requests with retry-once-after-refresh semantics, and
// memoizes idempotent reads in a short-TTL cache. Server-pushed
// corrections (forced logout, verification completed in another tab,
// rate-limit notices) arrive over the connection owned by
// [github.com/driftlock/authsync/realtime] and are re-emitted process-wide
// through the [SignalHub].
//
// Construct the manager through [Builder.Build]; after that it is safe for
// any number of goroutines:
//
//	m, err := authsync.New().
//		WithBaseURL("https://api.example.com").
//		WithRealtimeURL("wss://api.example.com/ws").
//		WithLogger(log).
//		Build()
//
// # Architecture boundaries
//
// authsync is the public surface. Connection lifecycle, the room
// subscription protocol, response memoization, and the cross-instance
// coordinator live in the realtime, cache, and coordinator subpackages and
// can be used independently.
//
// # What this package must NOT do
//
//   - Read or write credential material: the credential lives in HTTP-only
//     cookies carried by the HTTP client's jar.
//   - Install an unverified identity, whichever endpoint returned it.
//   - Hold module-level mutable state: every service is explicitly
//     constructed and torn down with Close.
package authsync
