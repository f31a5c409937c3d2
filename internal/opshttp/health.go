package opshttp

import (
	"net/http"

	"github.com/RuslanFatikhov/Collections/internal/health"
)

// probeHandler answers 200 with okBody when the probe passes (or is nil),
// 503 with the failure reason otherwise.
func probeHandler(p health.Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error()+"\n", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}

// HealthzHandler reports process liveness.
func HealthzHandler(p health.Probe) http.HandlerFunc {
	return probeHandler(p, "ok\n")
}

// ReadyzHandler reports readiness to take traffic. Flips during drain.
func ReadyzHandler(p health.Probe) http.HandlerFunc {
	return probeHandler(p, "ready\n")
}
