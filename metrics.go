package authsync

import "sync/atomic"

// MetricID names one counter tracked by the manager.
type MetricID uint8

const (
	// MetricLoginSuccess counts installed sessions from Login.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected or failed logins.
	MetricLoginFailure
	// MetricRefreshIssued counts refresh calls that reached the network.
	MetricRefreshIssued
	// MetricRefreshShared counts refresh callers served by an in-flight
	// refresh instead of a new network call.
	MetricRefreshShared
	// MetricRefreshFailure counts refreshes the server rejected.
	MetricRefreshFailure
	// MetricCacheHit counts authenticated reads served from cache.
	MetricCacheHit
	// MetricCacheMiss counts authenticated reads that hit the network.
	MetricCacheMiss
	// MetricRetryAfterRefresh counts the single post-refresh retries.
	MetricRetryAfterRefresh
	// MetricForcedLogout counts server-pushed logouts.
	MetricForcedLogout
	// MetricSessionInstalled counts wholesale session replacements.
	MetricSessionInstalled
	// MetricSessionCleared counts session teardowns of any cause.
	MetricSessionCleared

	metricCount
)

// Metrics is a fixed set of atomic counters. Always-on and cheap; an
// exporter can poll Snapshot.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// NewMetrics returns a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Get reads one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter at once.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
