package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter in the in-process metrics registry.
type MetricID uint16

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInFailure
	MetricSignInUnverified
	MetricExternalSignIn
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts replays of rotated or revoked refresh tokens.
	MetricRefreshReuseDetected
	MetricSignOut
	MetricSignOutAll
	MetricSignUpSuccess
	MetricSignUpDuplicate
	MetricVerificationIssued
	MetricVerificationSuccess
	MetricVerificationFailure
	MetricRecoveryRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricPasswordRehash
	MetricAccessValid
	MetricAccessInvalid
	// MetricValidateLatency is the only metric carrying a latency histogram.
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of every histogram bucket
// but the last, which takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// counter occupies a full cache line so hot neighbours don't share one.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the access validation histogram.
// A nil or disabled Metrics ignores every call.
type Metrics struct {
	on      bool
	latency bool

	counters [metricIDCount]counter
	buckets  [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histograms only
// has an entry for MetricValidateLatency, and only when histograms are on.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		on:      cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.on || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d for MetricValidateLatency. Other ids have no histogram
// and are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latency || id != MetricValidateLatency {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if m == nil || !m.on {
		return s
	}
	for id := range m.counters {
		s.Counters[MetricID(id)] = m.counters[id].Load()
	}
	if m.latency {
		hist := make([]uint64, latencyBucketCount)
		for i := range m.buckets {
			hist[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricValidateLatency] = hist
	}
	return s
}

// latencyBucket compares at millisecond resolution, so 5.9ms lands in the
// first bucket.
func latencyBucket(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
