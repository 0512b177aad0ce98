package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by dupguard.
const Namespace = "dupguard"

// Metrics contains service-level metrics that are not owned by a single component.
type Metrics struct {
	BuildInfo      *prometheus.GaugeVec
	StoreUp        *prometheus.GaugeVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	StoreCleanedUp prometheus.Counter
}

// NewMetrics creates the service-level metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information, value is always 1",
			},
			[]string{"version"},
		),
		StoreUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "up",
				Help:      "Whether the claim store answered its last ping (1) or not (0)",
			},
			[]string{"store"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		StoreCleanedUp: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "store",
				Name:      "expired_claims_removed_total",
				Help:      "Expired claims removed by store cleanup",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BuildInfo,
		m.StoreUp,
		m.HTTPRequests,
		m.HTTPDuration,
		m.StoreCleanedUp,
	}
}
