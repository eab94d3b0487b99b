package controller

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck is a named dependency probe used by the readiness endpoint.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthController struct {
	checks []HealthCheck
	active func() int
}

// NewHealthController creates a health controller. active reports the number of pending
// sessions and may be nil.
func NewHealthController(active func() int, checks ...HealthCheck) *HealthController {
	return &HealthController{checks: checks, active: active}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.Name + " unavailable",
			})
			return
		}
	}

	resp := map[string]any{"status": "ready"}
	if h.active != nil {
		resp["active_sessions"] = h.active()
	}
	writeJSON(w, http.StatusOK, resp)
}
