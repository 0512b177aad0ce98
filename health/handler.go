package health

import (
	"encoding/json"
	"net/http"
)

// Handler runs the probes on every request and answers with the aggregate
// as JSON: 200 unless a dependency is unhealthy, then 503.
func (m *Monitor) Handler(system string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.Check(r.Context(), system)

		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
