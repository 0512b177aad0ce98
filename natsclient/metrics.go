package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dupguard/metric"
)

type clientMetrics struct {
	status       prometheus.Gauge
	circuitOpens prometheus.Counter
}

func newClientMetrics(registry metric.Registrar) (*clientMetrics, error) {
	m := &clientMetrics{
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "connection_status",
			Help:      "Connection status (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=circuit_open)",
		}),
		circuitOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "circuit_opened_total",
			Help:      "Times the circuit breaker opened",
		}),
	}

	if err := registry.RegisterGauge("natsclient", "connection_status", m.status); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("natsclient", "circuit_opened_total", m.circuitOpens); err != nil {
		registry.Unregister("natsclient", "connection_status")
		return nil, err
	}
	return m, nil
}

func (m *clientMetrics) setStatus(s ConnectionStatus) {
	if m == nil {
		return
	}
	m.status.Set(float64(s))
}

func (m *clientMetrics) circuitOpened() {
	if m == nil {
		return
	}
	m.circuitOpens.Inc()
}
