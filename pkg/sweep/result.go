package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownPolicy      = errors.New("unknown invalidation policy")
	ErrDeviceInvalidation = errors.New("block device invalidation failed")
)

// Phase names one step of a sweep.
type Phase string

const (
	PhaseDrain     Phase = "drain"
	PhasePageCache Phase = "pagecache"
	PhaseBdev      Phase = "bdev"
	PhaseSlab      Phase = "slab"
)

// Event is a vm event counter name.
type Event string

const (
	EventDropPagecache Event = "drop_pagecache"
	EventDropSlab      Event = "drop_slab"
)

// PhaseError is a hard failure of one phase. The phases after it still ran.
type PhaseError struct {
	Phase      Phase
	Filesystem string
	Err        error
}

func (e *PhaseError) Error() string {
	if e.Filesystem == "" {
		return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s phase on %s: %v", e.Phase, e.Filesystem, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// PhaseTiming is the wall time of one phase. Filesystem is empty for phases
// that are not per filesystem.
type PhaseTiming struct {
	Phase      Phase         `json:"phase"`
	Filesystem string        `json:"fs,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Result summarises one sweep invocation.
type Result struct {
	ID           uuid.UUID     `json:"id"`
	Policy       Policy        `json:"policy"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Filesystems  []string      `json:"filesystems"`
	Visited      int           `json:"visited"`
	PagesDropped int           `json:"pages_dropped"`
	ObjectErrors int           `json:"object_errors"`
	SlabFreed    int           `json:"slab_freed"`
	Phases       []PhaseTiming `json:"phases"`
}

func newResult(policy Policy) *Result {
	return &Result{ID: uuid.New(), Policy: policy, StartedAt: time.Now()}
}

// fsResult is the pagecache phase outcome for one filesystem.
type fsResult struct {
	name     string
	visited  int
	dropped  int
	failures int
	phases   []PhaseTiming
}

func (r *Result) merge(f fsResult) {
	r.Filesystems = append(r.Filesystems, f.name)
	r.Visited += f.visited
	r.PagesDropped += f.dropped
	r.ObjectErrors += f.failures
	r.Phases = append(r.Phases, f.phases...)
}

// VMStat holds the vm event counters.
type VMStat struct {
	DropPagecache uint64 `json:"drop_pagecache"`
	DropSlab      uint64 `json:"drop_slab"`
}
