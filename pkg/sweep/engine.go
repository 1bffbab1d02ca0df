// Package sweep invalidates page caches across mounted filesystems.
//
// A sweep runs up to four phases: drain the LRU add batches, walk the inode
// list applying a Policy to each eligible inode, invalidate the block device
// buffer cache, and run the shrinkers. The walk holds at most two inode
// references at a time and never holds a filesystem or inode lock while a
// page cache is being invalidated.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/internal/telemetry"
	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

const (
	// A shrinker round freeing no more than this many objects ends DropSlab.
	slabRepeatThreshold = 10

	DefaultMaxShrinkPasses = 64
)

// Config tunes an Engine.
type Config struct {
	// TimeSlice is how long a walk runs before yielding.
	TimeSlice time.Duration

	// Parallelism bounds how many filesystems SweepAll walks at once.
	Parallelism int

	// LogPhases logs each phase's duration at INFO.
	LogPhases bool

	// MaxShrinkPasses bounds the shrinker rounds of one slab phase.
	MaxShrinkPasses int
}

// DefaultConfig returns a serial engine that logs phases and yields every
// vfs.DefaultTimeSlice.
func DefaultConfig() Config {
	return Config{
		TimeSlice:       vfs.DefaultTimeSlice,
		Parallelism:     1,
		LogPhases:       true,
		MaxShrinkPasses: DefaultMaxShrinkPasses,
	}
}

// Engine runs sweeps over the filesystems of a mount table.
type Engine struct {
	mounts  *vfs.MountTable
	hooks   *coherence.Hooks
	metrics Metrics
	cfg     Config

	dropPagecache atomic.Uint64
	dropSlab      atomic.Uint64

	mu   sync.Mutex
	last *Result

	newYielder func() vfs.Yielder
	// afterVisit, when set, runs after each inode is invalidated and before
	// the previous reference is dropped.
	afterVisit func(*vfs.Inode)
}

// New returns an engine. hooks and metrics may be nil.
func New(mounts *vfs.MountTable, hooks *coherence.Hooks, metrics Metrics, cfg Config) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.MaxShrinkPasses <= 0 {
		cfg.MaxShrinkPasses = DefaultMaxShrinkPasses
	}
	e := &Engine{mounts: mounts, hooks: hooks, metrics: metrics, cfg: cfg}
	e.newYielder = func() vfs.Yielder { return vfs.NewTimeSliceYielder(cfg.TimeSlice) }
	return e
}

// Mounts returns the table SweepAll walks.
func (e *Engine) Mounts() *vfs.MountTable { return e.mounts }

// Hooks returns the hook table wrapped around each invalidation.
func (e *Engine) Hooks() *coherence.Hooks { return e.hooks }

// SweepOne drains the LRU batches, applies policy to every eligible inode of
// fs, invalidates its block device and runs the shrinkers. A device failure
// is returned as a *PhaseError after the slab phase has run.
func (e *Engine) SweepOne(ctx context.Context, fs *vfs.Filesystem, policy Policy) (*Result, error) {
	res := newResult(policy)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSweepOne,
		telemetry.Filesystem(fs.Name()), telemetry.Policy(policy.String()), telemetry.SweepID(res.ID.String()))
	defer span.End()
	ctx = withSweepLog(ctx, res)

	e.drain(ctx, res)

	fr, err := e.sweepInstance(ctx, fs, policy, true)
	if fr.name != "" {
		res.merge(fr)
	}
	var pe *PhaseError
	if err != nil && !errors.As(err, &pe) {
		// Hold failed; nothing ran on this filesystem.
		telemetry.RecordError(ctx, err)
		e.finish(ctx, res)
		return res, err
	}

	e.slab(ctx, res)
	e.finish(ctx, res)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return res, err
	}
	return res, nil
}

// SweepAll is SweepOne over every mounted filesystem. Filesystems being
// unmounted are skipped. Device failures of several filesystems are joined.
func (e *Engine) SweepAll(ctx context.Context, policy Policy) (*Result, error) {
	res := newResult(policy)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSweepAll,
		telemetry.Policy(policy.String()), telemetry.SweepID(res.ID.String()))
	defer span.End()
	ctx = withSweepLog(ctx, res)

	e.drain(ctx, res)
	errs := e.eachFilesystem(ctx, policy, true, res)
	e.slab(ctx, res)
	e.finish(ctx, res)

	err := errors.Join(errs...)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return res, err
}

// DropPageCache drains the LRU batches and lazily invalidates every mounted
// filesystem. Block devices and shrinkers are left alone.
func (e *Engine) DropPageCache(ctx context.Context) *Result {
	res := newResult(Lazy)
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDropPageCache, telemetry.SweepID(res.ID.String()))
	defer span.End()
	ctx = withSweepLog(ctx, res)

	e.drain(ctx, res)
	e.eachFilesystem(ctx, Lazy, false, res)
	e.finish(ctx, res)

	e.dropPagecache.Add(1)
	if e.metrics != nil {
		e.metrics.RecordEvent(EventDropPagecache)
	}
	return res
}

// DropSlab runs the shrinkers until a round frees few objects and returns
// the total freed.
func (e *Engine) DropSlab(ctx context.Context) int {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDropSlab)
	defer span.End()

	var freed int
	e.timed(ctx, PhaseSlab, "", func(ctx context.Context) error {
		freed = e.shrinkAll(ctx)
		return nil
	})
	span.SetAttributes(telemetry.Pages(freed))

	e.dropSlab.Add(1)
	if e.metrics != nil {
		e.metrics.RecordEvent(EventDropSlab)
	}
	return freed
}

// MarkInvalid flags every stable inode of fs as invalid and calls the
// invalidate hook for each. Page caches are untouched.
func (e *Engine) MarkInvalid(ctx context.Context, fs *vfs.Filesystem) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMarkInvalid, telemetry.Filesystem(fs.Name()))
	defer span.End()

	release, err := fs.Hold()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, err
	}
	defer release()

	ids := fs.MarkInvalid()
	for _, id := range ids {
		logger.DebugCtx(ctx, "invalidate inode", logger.Filesystem(fs.Name()), logger.InodeID(id))
		e.hooks.Invalidate(id, fs.Name())
	}
	span.SetAttributes(telemetry.Visited(len(ids)))
	return len(ids), nil
}

// VMStat returns the vm event counters.
func (e *Engine) VMStat() VMStat {
	return VMStat{
		DropPagecache: e.dropPagecache.Load(),
		DropSlab:      e.dropSlab.Load(),
	}
}

// Last returns the most recent sweep result, or nil.
func (e *Engine) Last() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func withSweepLog(ctx context.Context, res *Result) context.Context {
	ctx = telemetry.WithLogContext(ctx)
	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext()
	}
	return logger.WithContext(ctx, lc.WithSweep(res.ID.String(), res.Policy.String()))
}

func (e *Engine) eachFilesystem(ctx context.Context, policy Policy, device bool, res *Result) []error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(e.cfg.Parallelism)

	for _, fs := range e.mounts.List() {
		g.Go(func() error {
			fr, err := e.sweepInstance(ctx, fs, policy, device)
			if errors.Is(err, vfs.ErrFilesystemDying) {
				logger.DebugCtx(ctx, "skipping filesystem being unmounted", logger.Filesystem(fs.Name()))
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			res.merge(fr)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// sweepInstance runs the pagecache phase on fs and, when device is set, the
// bdev phase. fs is held mounted for both.
func (e *Engine) sweepInstance(ctx context.Context, fs *vfs.Filesystem, policy Policy, device bool) (fsResult, error) {
	release, err := fs.Hold()
	if err != nil {
		return fsResult{}, err
	}
	defer release()

	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithFilesystem(fs.Name()))
	}

	fr := fsResult{name: fs.Name()}
	t, _ := e.timed(ctx, PhasePageCache, fs.Name(), func(ctx context.Context) error {
		e.invalidateInodes(ctx, fs, policy, &fr)
		return nil
	})
	fr.phases = append(fr.phases, t)

	if !device {
		return fr, nil
	}

	t, err = e.timed(ctx, PhaseBdev, fs.Name(), func(ctx context.Context) error {
		n, err := fs.Device().Invalidate(ctx)
		if err != nil {
			return err
		}
		logger.DebugCtx(ctx, "device buffers invalidated", logger.Pages(n))
		return nil
	})
	fr.phases = append(fr.phases, t)
	if err != nil {
		logger.ErrorCtx(ctx, "block device invalidation failed", logger.Err(err))
		return fr, &PhaseError{Phase: PhaseBdev, Filesystem: fs.Name(), Err: fmt.Errorf("%w: %w", ErrDeviceInvalidation, err)}
	}
	return fr, nil
}

// invalidateInodes is the walk. The reference on the previous inode is
// dropped only after the iterator has moved past it.
func (e *Engine) invalidateInodes(ctx context.Context, fs *vfs.Filesystem, policy Policy, fr *fsResult) {
	y := e.newYielder()
	it := fs.Iterate(vfs.IteratorOptions{Yielder: y})

	var prev *vfs.InodeRef
	for ref := it.Next(); ref != nil; ref = it.Next() {
		ino := ref.Inode()

		var (
			n   int
			err error
		)
		e.hooks.Guard(fs.ID(), ino.ID(), fs.Name(), func() {
			n, err = policy.Apply(ctx, ino)
		})
		fr.visited++
		fr.dropped += n
		if err != nil {
			fr.failures++
			logger.WarnCtx(ctx, "inode invalidation failed", logger.InodeID(ino.ID()), logger.Err(err))
		}
		if e.afterVisit != nil {
			e.afterVisit(ino)
		}

		prev.Release()
		prev = ref
		y.Yield()
	}
	prev.Release()
}

func (e *Engine) drain(ctx context.Context, res *Result) {
	t, _ := e.timed(ctx, PhaseDrain, "", func(ctx context.Context) error {
		n := e.mounts.Batcher().DrainAll()
		logger.DebugCtx(ctx, "lru batches drained", logger.Pages(n))
		return nil
	})
	res.Phases = append(res.Phases, t)
}

func (e *Engine) slab(ctx context.Context, res *Result) {
	t, _ := e.timed(ctx, PhaseSlab, "", func(ctx context.Context) error {
		res.SlabFreed += e.shrinkAll(ctx)
		return nil
	})
	res.Phases = append(res.Phases, t)
}

func (e *Engine) shrinkAll(ctx context.Context) int {
	total := 0
	for pass := 0; pass < e.cfg.MaxShrinkPasses; pass++ {
		freed := 0
		for _, s := range e.mounts.Shrinkers() {
			n, err := s.Shrink(ctx)
			if err != nil {
				logger.WarnCtx(ctx, "shrinker failed", slog.String(logger.KeyShrinker, s.Name()), logger.Err(err))
				continue
			}
			freed += n
		}
		total += freed
		if freed <= slabRepeatThreshold {
			break
		}
	}
	return total
}

// timed runs one phase under its own span, observing and optionally logging
// its duration.
func (e *Engine) timed(ctx context.Context, phase Phase, fsName string, fn func(context.Context) error) (PhaseTiming, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSweepPhase, telemetry.Phase(string(phase)))
	defer span.End()
	if fsName != "" {
		span.SetAttributes(telemetry.Filesystem(fsName))
	}

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	if e.metrics != nil {
		e.metrics.ObservePhase(phase, d)
	}
	if e.cfg.LogPhases {
		logger.InfoCtx(ctx, "sweep phase done", logger.Phase(string(phase)), logger.DurationUs(d))
	}
	return PhaseTiming{Phase: phase, Filesystem: fsName, Duration: d}, err
}

func (e *Engine) finish(ctx context.Context, res *Result) {
	res.Duration = time.Since(res.StartedAt)

	if e.metrics != nil {
		e.metrics.RecordSweep(res.Policy, res.Visited, res.PagesDropped, res.ObjectErrors)
	}
	logger.InfoCtx(ctx, "sweep complete",
		slog.Int(logger.KeyVisited, res.Visited),
		logger.Pages(res.PagesDropped),
		slog.Int(logger.KeyFailures, res.ObjectErrors),
		slog.Int(logger.KeyFreed, res.SlabFreed),
		logger.DurationMs(float64(res.Duration.Microseconds())/1000))

	e.mu.Lock()
	e.last = res
	e.mu.Unlock()
}
