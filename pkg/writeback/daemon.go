// Package writeback flushes dirty pages of every mounted filesystem to its
// backing store, periodically and on demand.
package writeback

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/internal/telemetry"
	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

// Config holds configuration for the writeback daemon.
type Config struct {
	// Interval between background passes.
	// Default: 5s
	Interval time.Duration

	// Workers is how many filesystems are flushed concurrently.
	// Default: 2
	Workers int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Workers:  2,
	}
}

// Metrics observes writeback passes. Nil disables collection.
type Metrics interface {
	ObservePass(pages, failures int, d time.Duration)
}

// Pass summarises one writeback pass.
type Pass struct {
	Filesystems int           `json:"filesystems"`
	Inodes      int           `json:"inodes"`
	Pages       int           `json:"pages"`
	Failures    int           `json:"failures"`
	Duration    time.Duration `json:"duration_ns"`
}

// Stats are the daemon's running totals.
type Stats struct {
	Passes      int       `json:"passes"`
	Pages       int       `json:"pages"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
}

// Daemon writes dirty pages back in the background. After an inode's pages
// reach the backing store the sync coherence hook is called for it.
type Daemon struct {
	mounts  *vfs.MountTable
	hooks   *coherence.Hooks
	metrics Metrics
	cfg     Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once

	mu          sync.Mutex
	started     bool
	passes      int
	pages       int
	failures    int
	lastError   error
	lastErrorAt time.Time
}

// New creates a daemon. hooks and metrics may be nil.
func New(mounts *vfs.MountTable, hooks *coherence.Hooks, metrics Metrics, cfg Config) *Daemon {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Daemon{
		mounts:    mounts,
		hooks:     hooks,
		metrics:   metrics,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins periodic passes. A daemon starts at most once.
func (d *Daemon) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	logger.Info("Starting writeback daemon", "interval", d.cfg.Interval.String(), "workers", d.cfg.Workers)
	go d.loop(ctx)
}

// Stop ends the periodic passes after one final pass, waiting at most
// timeout for it.
func (d *Daemon) Stop(timeout time.Duration) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(d.stopCh) })

	select {
	case <-d.stoppedCh:
		logger.Info("Writeback daemon stopped")
	case <-time.After(timeout):
		logger.Warn("Writeback daemon stop timed out")
	}
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.stoppedCh)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			_, _ = d.SyncAll(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = d.SyncAll(ctx)
		}
	}
}

// SyncAll runs one writeback pass over every mounted filesystem, including
// its block device buffers. The first error is returned; the pass continues
// past failures.
func (d *Daemon) SyncAll(ctx context.Context) (Pass, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWriteback)
	defer span.End()

	start := time.Now()
	var (
		mu       sync.Mutex
		pass     Pass
		firstErr error
		g        errgroup.Group
	)
	g.SetLimit(d.cfg.Workers)

	for _, fs := range d.mounts.List() {
		g.Go(func() error {
			p, err := d.syncFilesystem(ctx, fs)
			if errors.Is(err, vfs.ErrFilesystemDying) {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			pass.Filesystems++
			pass.Inodes += p.Inodes
			pass.Pages += p.Pages
			pass.Failures += p.Failures
			if err != nil && firstErr == nil {
				firstErr = err
			}
			return nil
		})
	}
	_ = g.Wait()
	pass.Duration = time.Since(start)

	d.record(pass, firstErr)
	span.SetAttributes(telemetry.Pages(pass.Pages), telemetry.Failures(pass.Failures))
	if firstErr != nil {
		telemetry.RecordError(ctx, firstErr)
	}
	if pass.Pages > 0 || firstErr != nil {
		logger.DebugCtx(ctx, "writeback pass",
			logger.Pages(pass.Pages), "inodes", pass.Inodes, "failures", pass.Failures, logger.Err(firstErr))
	}
	return pass, firstErr
}

func (d *Daemon) syncFilesystem(ctx context.Context, fs *vfs.Filesystem) (Pass, error) {
	release, err := fs.Hold()
	if err != nil {
		return Pass{}, err
	}
	defer release()

	var (
		pass     Pass
		firstErr error
		prev     *vfs.InodeRef
	)
	it := fs.Iterate(vfs.IteratorOptions{})
	for ref := it.Next(); ref != nil; ref = it.Next() {
		ino := ref.Inode()
		n, err := ino.Writeback(ctx)
		pass.Pages += n
		switch {
		case err != nil:
			pass.Failures++
			if firstErr == nil {
				firstErr = err
			}
			logger.WarnCtx(ctx, "writeback failed",
				logger.Filesystem(fs.Name()), logger.InodeID(ino.ID()), logger.Err(err))
		case n > 0:
			pass.Inodes++
			d.hooks.Sync(ino.ID(), fs.Name())
		}
		prev.Release()
		prev = ref
	}
	prev.Release()

	n, err := fs.Device().Sync(ctx)
	pass.Pages += n
	if err != nil {
		pass.Failures++
		if firstErr == nil {
			firstErr = err
		}
	}
	return pass, firstErr
}

func (d *Daemon) record(p Pass, err error) {
	if d.metrics != nil {
		d.metrics.ObservePass(p.Pages, p.Failures, p.Duration)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.passes++
	d.pages += p.Pages
	d.failures += p.Failures
	if err != nil {
		d.lastError = err
		d.lastErrorAt = time.Now()
	}
}

// Stats returns the running totals.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Stats{Passes: d.passes, Pages: d.pages, Failures: d.failures, LastErrorAt: d.lastErrorAt}
	if d.lastError != nil {
		st.LastError = d.lastError.Error()
	}
	return st
}
