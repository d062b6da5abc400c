package veloxauth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one counter or histogram in the fixed metric set.
type MetricID uint16

const (
	// MetricPairIssued counts token pairs created.
	MetricPairIssued MetricID = iota
	// MetricSessionResolved counts successful session resolutions.
	MetricSessionResolved
	// MetricSessionRejected counts bearer credentials that failed closed.
	MetricSessionRejected
	// MetricRefreshSuccess counts successful token exchanges.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected token exchanges.
	MetricRefreshFailure
	// MetricLogout counts logout revocations.
	MetricLogout
	// MetricRevocation counts identifiers written to the revocation store.
	MetricRevocation
	// MetricRateLimitAllowed counts admitted attempts.
	MetricRateLimitAllowed
	// MetricRateLimitRejected counts rate-limited attempts.
	MetricRateLimitRejected
	// MetricCsrfIssued counts CSRF tokens generated.
	MetricCsrfIssued
	// MetricCsrfRejected counts CSRF validation failures.
	MetricCsrfRejected
	// MetricSessionLatency is the session-resolution latency histogram.
	MetricSessionLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of atomically updated counters plus an optional
// session-resolution latency histogram. Counters are padded to cache lines
// so hot-path increments do not false-share.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics collector. A disabled collector is a valid
// no-op receiver.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the collector records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency samples are being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc atomically increments the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a session-resolution latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricSessionLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histograms at once.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricSessionLatency].buckets[i])
		}
		s.Histograms[MetricSessionLatency] = buckets
	}

	return s
}

// bucketIndex maps a latency to a power-of-two bucket:
// <100µs, <200µs, <400µs, ... , >=6.4ms.
func bucketIndex(d time.Duration) int {
	bound := 100 * time.Microsecond
	for i := 0; i < histBucketCount-1; i++ {
		if d < bound {
			return i
		}
		bound *= 2
	}
	return histBucketCount - 1
}
