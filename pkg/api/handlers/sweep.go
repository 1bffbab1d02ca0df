package handlers

import (
	"net/http"

	"github.com/marmos91/pagesweep/pkg/runtime"
)

// SweepHandler serves the routes that act on every filesystem at once.
type SweepHandler struct {
	rt *runtime.Runtime
}

// NewSweepHandler returns a handler for sweeps, status and sync.
func NewSweepHandler(rt *runtime.Runtime) *SweepHandler {
	return &SweepHandler{rt: rt}
}

// SweepAll handles POST /api/v1/sweep?policy=lazy|strict.
func (h *SweepHandler) SweepAll(w http.ResponseWriter, r *http.Request) {
	policy, ok := policyParam(w, r)
	if !ok {
		return
	}
	res, err := h.rt.Engine().SweepAll(r.Context(), policy)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSONOK(w, res)
}

// Sync handles POST /api/v1/sync.
func (h *SweepHandler) Sync(w http.ResponseWriter, r *http.Request) {
	pass, err := h.rt.Writeback().SyncAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSONOK(w, pass)
}

// VMStat handles GET /api/v1/vmstat.
func (h *SweepHandler) VMStat(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.rt.Engine().VMStat())
}

// Status handles GET /api/v1/status.
func (h *SweepHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.rt.Status())
}
