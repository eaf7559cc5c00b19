// Package coordinator elects one primary among many independent consumers
// of the same server-derived value, so that exactly one fetch is in flight
// per resource no matter how many consumers mount simultaneously.
//
// Every consumer registers an Instance; the first registrant (and, after
// it closes, its successor in registration order) is primary. Only the
// primary initiates fetches; concurrent requests for the same owner key
// collapse into one call, and every result is rebroadcast to all
// registered instances. The in-flight fetch belongs to the Coordinator,
// not to any instance, so closing the primary mid-fetch loses nothing.
//
// # What this package must NOT do
//
//   - Know anything about sessions, HTTP, or the connection layer; the
//     fetch function is opaque.
//   - Block on slow consumers: rebroadcast is latest-wins with a buffer
//     of one per instance.
package coordinator
