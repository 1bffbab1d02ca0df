package handlers

import (
	"net/http"

	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/runtime"
)

// CoherenceHandler exposes the hook table and the pending write state.
type CoherenceHandler struct {
	rt *runtime.Runtime
}

// NewCoherenceHandler returns a handler for hook and pending-write routes.
func NewCoherenceHandler(rt *runtime.Runtime) *CoherenceHandler {
	return &CoherenceHandler{rt: rt}
}

// CoherenceStatus is the body of GET /api/v1/coherence.
type CoherenceStatus struct {
	Hooks   coherence.Slots    `json:"hooks"`
	Pending coherence.Snapshot `json:"pending"`
}

// PendingWriteRequest appends one entry to the pending write list.
type PendingWriteRequest struct {
	Path   string `json:"path"`
	FileID uint64 `json:"file_id"`
}

// Get handles GET /api/v1/coherence.
func (h *CoherenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, CoherenceStatus{
		Hooks:   h.rt.Hooks().Installed(),
		Pending: h.rt.Pending().Snapshot(),
	})
}

// AppendPending handles POST /api/v1/coherence/pending. A full list or an
// overlong path is a 422.
func (h *CoherenceHandler) AppendPending(w http.ResponseWriter, r *http.Request) {
	var req PendingWriteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.rt.Pending().Append(req.Path, req.FileID); err != nil {
		WriteProblem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
		return
	}
	WriteJSONOK(w, h.rt.Pending().Snapshot())
}

// ResetPending handles DELETE /api/v1/coherence/pending.
func (h *CoherenceHandler) ResetPending(w http.ResponseWriter, r *http.Request) {
	h.rt.Pending().Reset()
	w.WriteHeader(http.StatusNoContent)
}
