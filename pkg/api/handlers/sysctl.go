package handlers

import (
	"net/http"

	"github.com/marmos91/pagesweep/pkg/api/middleware"
	"github.com/marmos91/pagesweep/pkg/runtime"
	"github.com/marmos91/pagesweep/pkg/sysctl"
)

// SysctlHandler exposes the vm.drop_caches knob.
type SysctlHandler struct {
	rt *runtime.Runtime
}

// NewSysctlHandler returns a handler for the drop_caches knob.
func NewSysctlHandler(rt *runtime.Runtime) *SysctlHandler {
	return &SysctlHandler{rt: rt}
}

// DropCachesValue is the body of GET /api/v1/sysctl/vm/drop_caches.
type DropCachesValue struct {
	Value int  `json:"value"`
	Quiet bool `json:"quiet"`
}

// DropCachesRequest is the body of PUT /api/v1/sysctl/vm/drop_caches. Comm
// and PID identify the writer in the audit line.
type DropCachesRequest struct {
	Value int    `json:"value"`
	Comm  string `json:"comm,omitempty"`
	PID   int    `json:"pid,omitempty"`
}

// GetDropCaches handles GET /api/v1/sysctl/vm/drop_caches.
func (h *SysctlHandler) GetDropCaches(w http.ResponseWriter, r *http.Request) {
	dc := h.rt.DropCaches()
	WriteJSONOK(w, DropCachesValue{Value: dc.Read(), Quiet: dc.Quiet()})
}

// PutDropCaches handles PUT /api/v1/sysctl/vm/drop_caches. Values outside
// [1, 4] are rejected with 400 and change nothing.
func (h *SysctlHandler) PutDropCaches(w http.ResponseWriter, r *http.Request) {
	var req DropCachesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	caller := sysctl.Caller{Comm: req.Comm, PID: req.PID}
	if caller.Comm == "" {
		caller.Comm = "api"
		if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
			caller.Comm = claims.Subject
		}
	}

	out, err := h.rt.DropCaches().Write(r.Context(), req.Value, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSONOK(w, out)
}
