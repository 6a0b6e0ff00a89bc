package passly

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricRegisterSuccess counts accounts created by Register.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts Register calls rejected for a taken email.
	MetricRegisterDuplicate
	// MetricLoginSuccess counts logins that returned a token pair.
	MetricLoginSuccess
	// MetricLoginFailure counts logins rejected for bad credentials.
	MetricLoginFailure
	// MetricLoginUnverified counts logins rejected by the verified-email gate.
	MetricLoginUnverified
	// MetricLoginSecondFactor counts logins that stopped to send a login code.
	MetricLoginSecondFactor
	// MetricRefreshSuccess counts successful token rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh tokens.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts rotated refresh tokens presented again.
	MetricRefreshReuseDetected
	// MetricLogout counts revoked refresh tokens.
	MetricLogout
	// MetricOTPIssued counts generated one-time codes.
	MetricOTPIssued
	// MetricOTPVerified counts one-time codes that verified.
	MetricOTPVerified
	// MetricOTPFailed counts failed one-time code verifications.
	MetricOTPFailed
	// MetricEmailVerified counts accounts whose email got verified.
	MetricEmailVerified
	// MetricPasswordResetRequest counts RequestPasswordReset calls.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess counts completed password resets.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure counts rejected password resets.
	MetricPasswordResetFailure
	// MetricOTPSwept counts records removed by the expired-code sweep.
	MetricOTPSwept
	// MetricPasswordHashLatency is the wall time of argon2 derivations.
	MetricPasswordHashLatency
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

// Metrics is a fixed set of lock-free counters and one latency histogram.
// A nil or disabled *Metrics records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics. Histogram buckets are
// non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates metrics for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricPasswordHashLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the histogram.
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
		if id == MetricPasswordHashLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricPasswordHashLatency].buckets[i])
		}
		s.Histograms[MetricPasswordHashLatency] = buckets
	}

	return s
}

// Bucket upper bounds: 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
