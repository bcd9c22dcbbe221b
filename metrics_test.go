package authgate

import (
	"sync"
	"testing"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("login success = %d, want 2", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("logout = %d, want 1", snap.Counters[MetricLogout])
	}
	if snap.Counters[MetricOtpSent] != 0 {
		t.Fatalf("otp sent = %d, want 0", snap.Counters[MetricOtpSent])
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Inc(MetricLoginSuccess)
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled metrics must snapshot empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if nilMetrics.Snapshot().Counters == nil {
		t.Fatal("nil metrics must snapshot an empty map, not nil")
	}
}

func TestMetricsOutOfRangeID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricIDCount)
	m.Inc(MetricID(9999))
	for id, v := range m.Snapshot().Counters {
		if v != 0 {
			t.Fatalf("counter %v unexpectedly %d", id, v)
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricOtpSent)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricOtpSent]; got != workers*perWorker {
		t.Fatalf("otp sent = %d, want %d", got, workers*perWorker)
	}
}
