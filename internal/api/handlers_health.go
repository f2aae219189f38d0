package api

import (
	"net/http"

	"github.com/askloop/askloop/server/internal/api/respond"
	"github.com/askloop/askloop/server/internal/health"
)

type HealthHandler struct {
	checker *health.ServiceHealthChecker
}

func NewHealthHandler(c *health.ServiceHealthChecker) *HealthHandler {
	return &HealthHandler{checker: c}
}

// Check reports aggregate service health. 503 while any dependency is down.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil && !h.checker.IsHealthy() {
		respond.WriteError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
