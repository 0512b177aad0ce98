package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler for the registry.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(
		r.prometheusRegistry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)
}

// Mount registers the scrape handler on mux at path (default /metrics).
func (r *MetricsRegistry) Mount(mux *http.ServeMux, path string) {
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, r.Handler())
}
