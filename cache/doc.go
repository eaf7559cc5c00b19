// Package cache provides the short-TTL response memoization used by the
// session manager to collapse duplicate reads issued by independent
// consumers.
//
// The store is a pure in-process data structure: it knows nothing about
// HTTP, URLs, or the network. Keys are opaque strings; invalidation matches
// by substring so a single mutation can evict every cached view of the
// resource it touched.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Grow unbounded: expired entries are dropped on read and on write.
//   - Be shared across processes; one store belongs to one manager.
package cache
