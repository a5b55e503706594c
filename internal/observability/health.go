package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus represents the health status of the service.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency.
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckFunc probes one dependency.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// NamedCheck pairs a dependency name with its probe.
type NamedCheck struct {
	Name  string
	Check HealthCheckFunc
}

// HealthCheckHandler handles liveness requests.
func HealthCheckHandler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   service,
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// ReadinessHandler probes each dependency and reports 503 when any probe
// fails.
func ReadinessHandler(service, version string, checks ...NamedCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dependencies := make(map[string]DependencyStatus)
		allHealthy := true
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			start := time.Now()
			healthy, err := c.Check(ctx)
			latency := time.Since(start).Milliseconds()

			status := "healthy"
			message := ""
			if err != nil || !healthy {
				status = "unhealthy"
				allHealthy = false
				if err != nil {
					message = err.Error()
				}
			}

			dependencies[c.Name] = DependencyStatus{
				Status:    status,
				Message:   message,
				LatencyMs: latency,
			}
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      service,
			Version:      version,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		w.Header().Set("Content-Type", "application/json")
		if !allHealthy {
			status.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}
