package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/sysctl"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

// decodeJSONBody decodes a JSON request body into v. On failure a 400 is
// written and false returned.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// policyParam parses the policy query parameter. Absent means lazy.
func policyParam(w http.ResponseWriter, r *http.Request) (sweep.Policy, bool) {
	p, err := sweep.ParsePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		BadRequest(w, err.Error())
		return p, false
	}
	return p, true
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	var pe *sweep.PhaseError
	switch {
	case errors.Is(err, vfs.ErrNotMounted):
		NotFound(w, err.Error())
	case errors.Is(err, vfs.ErrFilesystemDying):
		Conflict(w, err.Error())
	case errors.Is(err, sweep.ErrUnknownPolicy), errors.Is(err, sysctl.ErrOutOfRange):
		BadRequest(w, err.Error())
	case errors.As(err, &pe):
		WriteProblem(w, http.StatusBadGateway, "Phase Failed", err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}
