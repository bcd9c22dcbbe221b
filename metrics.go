package authgate

import "sync/atomic"

// MetricID defines a public type used by authgate APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the authentication gateway.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the authentication gateway.
	MetricLoginFailure
	// MetricOtpSent is an exported constant or variable used by the authentication gateway.
	MetricOtpSent
	// MetricOtpSendFailure is an exported constant or variable used by the authentication gateway.
	MetricOtpSendFailure
	// MetricOtpVerifySuccess is an exported constant or variable used by the authentication gateway.
	MetricOtpVerifySuccess
	// MetricOtpVerifyFailure is an exported constant or variable used by the authentication gateway.
	MetricOtpVerifyFailure
	// MetricLogout is an exported constant or variable used by the authentication gateway.
	MetricLogout
	// MetricLogoutUpstreamFailure is an exported constant or variable used by the authentication gateway.
	MetricLogoutUpstreamFailure
	// MetricSessionCreated is an exported constant or variable used by the authentication gateway.
	MetricSessionCreated
	// MetricSessionCleared is an exported constant or variable used by the authentication gateway.
	MetricSessionCleared
	// MetricTransportFailure is an exported constant or variable used by the authentication gateway.
	MetricTransportFailure
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by authgate APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot defines a public type used by authgate APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics may return an error when input validation, dependency calls, or security checks fail.
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled may return an error when input validation, dependency calls, or security checks fail.
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc describes the inc operation and its observable behavior.
//
// Inc may return an error when input validation, dependency calls, or security checks fail.
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot may return an error when input validation, dependency calls, or security checks fail.
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return out
}
