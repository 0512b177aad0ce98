package guard

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dupguard/metric"
)

const (
	outcomeAcquired   = "acquired"
	outcomeRejected   = "rejected"
	outcomeStoreError = "store_error"
	outcomeReleased   = "released"
	outcomeFailed     = "failed"
)

type guardMetrics struct {
	acquires      *prometheus.CounterVec
	releases      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	degraded      *prometheus.CounterVec
}

func newGuardMetrics(registry metric.Registrar) (*guardMetrics, error) {
	m := &guardMetrics{
		acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "guard",
			Name:      "acquire_total",
			Help:      "Claim attempts by outcome",
		}, []string{"outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "guard",
			Name:      "release_total",
			Help:      "Early claim releases by outcome",
		}, []string{"outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "guard",
			Name:      "store_duration_seconds",
			Help:      "Latency of claim store round trips",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "guard",
			Name:      "fingerprint_degraded_total",
			Help:      "Fingerprints computed with a substitute value",
		}, []string{"reason"}),
	}

	if err := registry.RegisterCounterVec("guard", "acquire_total", m.acquires); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("guard", "release_total", m.releases); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("guard", "store_duration_seconds", m.storeDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("guard", "fingerprint_degraded_total", m.degraded); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *guardMetrics) acquired(outcome string) {
	if m != nil {
		m.acquires.WithLabelValues(outcome).Inc()
	}
}

func (m *guardMetrics) released(outcome string) {
	if m != nil {
		m.releases.WithLabelValues(outcome).Inc()
	}
}

func (m *guardMetrics) observeStore(op string, seconds float64) {
	if m != nil {
		m.storeDuration.WithLabelValues(op).Observe(seconds)
	}
}

func (m *guardMetrics) degradedFingerprint(reason DegradedReason) {
	if m != nil {
		m.degraded.WithLabelValues(string(reason)).Inc()
	}
}
