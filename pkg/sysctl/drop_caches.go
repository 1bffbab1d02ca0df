// Package sysctl implements the vm.drop_caches control knob.
package sysctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/internal/telemetry"
	"github.com/marmos91/pagesweep/pkg/sweep"
)

const (
	MinValue = 1
	MaxValue = 4
)

// ErrOutOfRange is returned for values outside MinValue..MaxValue.
var ErrOutOfRange = errors.New("drop_caches value out of range")

// Flags is a drop_caches value decoded into its actions.
type Flags struct {
	PageCache bool `json:"pagecache"`
	Slab      bool `json:"slab"`
	Quiet     bool `json:"quiet"`
}

// DecodeFlags splits v into its bits: 1 drops the page cache, 2 runs the
// shrinkers, 4 silences the audit line. Range checking is Write's job.
func DecodeFlags(v int) Flags {
	return Flags{
		PageCache: v&1 != 0,
		Slab:      v&2 != 0,
		Quiet:     v&4 != 0,
	}
}

// Caller identifies who wrote the knob, for the audit log line.
type Caller struct {
	Comm string
	PID  int
}

// Dropper performs the actions a write triggers. *sweep.Engine satisfies it.
type Dropper interface {
	DropPageCache(ctx context.Context) *sweep.Result
	DropSlab(ctx context.Context) int
}

// Outcome reports what one accepted write did.
type Outcome struct {
	Value     int           `json:"value"`
	Flags     Flags         `json:"flags"`
	PageCache *sweep.Result `json:"pagecache,omitempty"`
	SlabFreed int           `json:"slab_freed"`
	Logged    bool          `json:"logged"`
}

// DropCaches holds the knob's value and the sticky quiet flag. Writes are
// serialised.
type DropCaches struct {
	dropper Dropper

	mu    sync.Mutex
	value int
	quiet bool
}

// New returns the knob. quiet starts it with logging already suppressed.
func New(d Dropper, quiet bool) *DropCaches {
	return &DropCaches{dropper: d, quiet: quiet}
}

// Read returns the last accepted value, 0 before any write.
func (d *DropCaches) Read() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Quiet reports whether the audit line is suppressed.
func (d *DropCaches) Quiet() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quiet
}

// Write stores value and runs the actions its bits select. Values outside
// [MinValue, MaxValue] are rejected before anything runs.
func (d *DropCaches) Write(ctx context.Context, value int, caller Caller) (Outcome, error) {
	if value < MinValue || value > MaxValue {
		return Outcome{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, value, MinValue, MaxValue)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDropCaches, telemetry.Value(value))
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.value = value
	out := Outcome{Value: value, Flags: DecodeFlags(value)}

	if out.Flags.PageCache {
		out.PageCache = d.dropper.DropPageCache(ctx)
	}
	if out.Flags.Slab {
		out.SlabFreed = d.dropper.DropSlab(ctx)
	}
	if !d.quiet {
		logger.InfoCtx(ctx, fmt.Sprintf("%s (%d): drop_caches: %d", caller.Comm, caller.PID, value),
			slog.String(logger.KeyComm, caller.Comm),
			slog.Int(logger.KeyPID, caller.PID),
			slog.Int(logger.KeyValue, value))
		out.Logged = true
	}
	d.quiet = d.quiet || out.Flags.Quiet
	return out, nil
}
