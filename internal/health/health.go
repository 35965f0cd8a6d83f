// Package health provides liveness and readiness endpoints. Liveness only
// reports that the process is serving; readiness summarizes circuit breaker
// states so orchestrators can shed traffic while upstreams are failing.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/m-check1B/callguard/internal/circuitbreaker"
)

var liveBody = []byte(`{"status":"ok"}`)

// LivenessHandler responds 200 as long as the process can serve HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(liveBody) //nolint:errcheck
	}
}

type circuitHealth struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type readiness struct {
	Status   string          `json:"status"`
	Circuits []circuitHealth `json:"circuits"`
}

// ReadinessHandler reports 503 while any circuit is open, 200 otherwise.
// Half-open circuits are already letting trial calls through, so they do not
// fail readiness.
func ReadinessHandler(registry *circuitbreaker.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := registry.All()

		resp := readiness{
			Status:   "ready",
			Circuits: make([]circuitHealth, len(all)),
		}
		status := http.StatusOK

		for i, cb := range all {
			state := cb.State()
			resp.Circuits[i] = circuitHealth{Name: cb.Name(), State: state.String()}
			if state == circuitbreaker.StateOpen {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}
}
