package passly

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsEnabledIncrementAndAdd(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Add(MetricOTPSwept, 40)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := m.Value(MetricOTPSwept); got != 40 {
		t.Fatalf("expected 40, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		90 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		time.Second,
		3 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricPasswordHashLatency, d)
	}
	// Only the hash latency histogram exists.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricPasswordHashLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, v)
		}
	}
	if _, ok := snap.Counters[MetricPasswordHashLatency]; ok {
		t.Fatal("histogram id must not appear as a counter")
	}
}

func TestMetricsHistogramDisabledWithoutLatencyFlag(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricPasswordHashLatency, time.Millisecond)

	if _, ok := m.Snapshot().Histograms[MetricPasswordHashLatency]; ok {
		t.Fatal("histogram must be absent when latency histograms are disabled")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricPasswordHashLatency, time.Second)
	if m.Enabled() || m.LatencyEnabled() || m.Value(MetricLogout) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}
