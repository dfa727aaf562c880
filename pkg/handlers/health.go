package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness endpoints.
type HealthHandler struct {
	serviceName string
	version     string
	checks      []ReadinessCheck
}

// NewHealthHandler creates a health handler with its dependency probes.
func NewHealthHandler(serviceName, version string, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		checks:      checks,
	}
}

// Healthz handles GET /healthz: process liveness only.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   h.serviceName,
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	})
}

// Readyz handles GET /readyz: all dependency probes must pass.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	dependencies := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			dependencies[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			dependencies[check.Name] = "ok"
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"status":       statusWord(status),
		"service":      h.serviceName,
		"dependencies": dependencies,
		"timestamp":    time.Now().UTC(),
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "not_ready"
}
