package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/pagesweep/pkg/runtime"
)

// HealthCheckTimeout bounds the backing store probes of GET /health/stores.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is at least one filesystem mounted?
//   - Store health: the backing store of every filesystem
type HealthHandler struct {
	rt *runtime.Runtime
}

// NewHealthHandler creates a new health handler. rt may be nil, in which
// case readiness and store checks report unhealthy.
func NewHealthHandler(rt *runtime.Runtime) *HealthHandler {
	return &HealthHandler{rt: rt}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"service": "pagesweep"}
	if h.rt != nil {
		uptime := time.Since(h.rt.StartedAt())
		data["started_at"] = h.rt.StartedAt().UTC().Format(time.RFC3339)
		data["uptime"] = uptime.Round(time.Second).String()
		data["uptime_sec"] = int64(uptime.Seconds())
	}
	writeJSON(w, http.StatusOK, healthyResponse(data))
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.rt == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("runtime not initialized"))
		return
	}

	n := len(h.rt.Mounts().List())
	if n == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no filesystems mounted"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"filesystems": n,
		"writeback":   h.rt.Writeback().Stats(),
	}))
}

// StoreHealth is the health of one filesystem's backing store.
type StoreHealth struct {
	Filesystem string `json:"fs"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Latency    string `json:"latency,omitempty"`
}

// Stores handles GET /health/stores. It returns 503 if any store fails its
// probe.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	if h.rt == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("runtime not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	stores := make([]StoreHealth, 0)
	allHealthy := true
	for _, fs := range h.rt.Mounts().List() {
		start := time.Now()
		err := fs.Device().Store().HealthCheck(ctx)
		health := StoreHealth{
			Filesystem: fs.Name(),
			Status:     "healthy",
			Latency:    time.Since(start).String(),
		}
		if err != nil {
			health.Status = "unhealthy"
			health.Error = err.Error()
			allHealthy = false
		}
		stores = append(stores, health)
	}

	if !allHealthy {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(stores))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(stores))
}
