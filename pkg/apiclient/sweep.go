package apiclient

import (
	"time"

	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/sysctl"
	"github.com/marmos91/pagesweep/pkg/vfs"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

// DropCaches is the current drop_caches value.
type DropCaches struct {
	Value int  `json:"value"`
	Quiet bool `json:"quiet"`
}

// DropCachesRequest writes the drop_caches knob.
type DropCachesRequest struct {
	Value int    `json:"value"`
	Comm  string `json:"comm,omitempty"`
	PID   int    `json:"pid,omitempty"`
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

// InvalidateResult reports how many inodes were marked invalid.
type InvalidateResult struct {
	Filesystem string `json:"fs"`
	Marked     int    `json:"marked"`
}

// Status is the runtime summary returned by GET /api/v1/status.
type Status struct {
	StartedAt   time.Time       `json:"started_at"`
	Filesystems int             `json:"filesystems"`
	DropCaches  int             `json:"drop_caches"`
	Quiet       bool            `json:"quiet"`
	VMStat      sweep.VMStat    `json:"vmstat"`
	Writeback   writeback.Stats `json:"writeback"`
	Hooks       coherence.Slots `json:"hooks"`
	LastSweep   *sweep.Result   `json:"last_sweep,omitempty"`
	Pending     coherence.State `json:"pending_state"`
}

// Coherence is the hook table occupancy and the pending write state.
type Coherence struct {
	Hooks   coherence.Slots    `json:"hooks"`
	Pending coherence.Snapshot `json:"pending"`
}

// GetDropCaches reads the drop_caches knob.
func (c *Client) GetDropCaches() (*DropCaches, error) {
	return getResource[DropCaches](c, "/api/v1/sysctl/vm/drop_caches")
}

// DropCaches writes value to the drop_caches knob.
func (c *Client) DropCaches(req DropCachesRequest) (*sysctl.Outcome, error) {
	return updateResource[sysctl.Outcome](c, "/api/v1/sysctl/vm/drop_caches", req)
}

// VMStat returns the vm event counters.
func (c *Client) VMStat() (*sweep.VMStat, error) {
	return getResource[sweep.VMStat](c, "/api/v1/vmstat")
}

// Status returns the runtime summary.
func (c *Client) Status() (*Status, error) {
	return getResource[Status](c, "/api/v1/status")
}

// ListFilesystems returns every mounted filesystem.
func (c *Client) ListFilesystems() ([]Filesystem, error) {
	return listResources[Filesystem](c, "/api/v1/filesystems")
}

// GetFilesystem returns one filesystem with its inodes.
func (c *Client) GetFilesystem(name string) (*Filesystem, error) {
	return getResource[Filesystem](c, fsPath(name, ""))
}

// SweepFilesystem runs a sweep of one filesystem. An empty policy means
// lazy.
func (c *Client) SweepFilesystem(name, policy string) (*sweep.Result, error) {
	return postResource[sweep.Result](c, withPolicy(fsPath(name, "/sweep"), policy), nil)
}

// SweepAll sweeps every mounted filesystem.
func (c *Client) SweepAll(policy string) (*sweep.Result, error) {
	return postResource[sweep.Result](c, withPolicy("/api/v1/sweep", policy), nil)
}

// Invalidate marks every stable inode of a filesystem invalid.
func (c *Client) Invalidate(name string) (*InvalidateResult, error) {
	return postResource[InvalidateResult](c, fsPath(name, "/invalidate"), nil)
}

// Sync runs one writeback pass over every filesystem.
func (c *Client) Sync() (*writeback.Pass, error) {
	return postResource[writeback.Pass](c, "/api/v1/sync", nil)
}

// Coherence returns the hook table and pending write state.
func (c *Client) Coherence() (*Coherence, error) {
	return getResource[Coherence](c, "/api/v1/coherence")
}

// AppendPending records a pending write.
func (c *Client) AppendPending(path string, fileID uint64) (*coherence.Snapshot, error) {
	body := struct {
		Path   string `json:"path"`
		FileID uint64 `json:"file_id"`
	}{path, fileID}
	return postResource[coherence.Snapshot](c, "/api/v1/coherence/pending", body)
}

// ResetPending clears the pending write state.
func (c *Client) ResetPending() error {
	return c.delete("/api/v1/coherence/pending", nil)
}
