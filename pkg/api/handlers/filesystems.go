package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/runtime"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

// FilesystemHandler serves the per-filesystem routes.
type FilesystemHandler struct {
	rt *runtime.Runtime
}

// NewFilesystemHandler returns a handler for per-filesystem routes.
func NewFilesystemHandler(rt *runtime.Runtime) *FilesystemHandler {
	return &FilesystemHandler{rt: rt}
}

// Filesystem describes one mounted filesystem.
type Filesystem struct {
	Name     string          `json:"name"`
	ID       uint64          `json:"id"`
	PageSize int             `json:"page_size"`
	Stats    vfs.Stats       `json:"stats"`
	Buffers  pagecache.Stats `json:"buffers"`
	Inodes   []vfs.Info      `json:"inodes,omitempty"`
}

// InvalidateResponse is the body returned by the invalidate route.
type InvalidateResponse struct {
	Filesystem string `json:"fs"`
	Marked     int    `json:"marked"`
}

func describe(fs *vfs.Filesystem) Filesystem {
	return Filesystem{
		Name:     fs.Name(),
		ID:       fs.ID(),
		PageSize: fs.PageSize(),
		Stats:    fs.Stats(),
		Buffers:  fs.Device().Stats(),
	}
}

// List handles GET /api/v1/filesystems.
func (h *FilesystemHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]Filesystem, 0)
	for _, fs := range h.rt.Mounts().List() {
		out = append(out, describe(fs))
	}
	WriteJSONOK(w, out)
}

// Get handles GET /api/v1/filesystems/{name}. The response includes every
// inode.
func (h *FilesystemHandler) Get(w http.ResponseWriter, r *http.Request) {
	fs, err := h.rt.Filesystem(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	d := describe(fs)
	d.Inodes = fs.Inodes()
	WriteJSONOK(w, d)
}

// Sweep handles POST /api/v1/filesystems/{name}/sweep?policy=lazy|strict.
func (h *FilesystemHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	policy, ok := policyParam(w, r)
	if !ok {
		return
	}
	res, err := h.rt.SweepFilesystem(r.Context(), chi.URLParam(r, "name"), policy)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSONOK(w, res)
}

// Invalidate handles POST /api/v1/filesystems/{name}/invalidate.
func (h *FilesystemHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	n, err := h.rt.InvalidateFilesystem(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteJSONOK(w, InvalidateResponse{Filesystem: name, Marked: n})
}
