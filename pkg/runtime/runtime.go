// Package runtime wires the mount table, the sweep engine, the drop_caches
// knob and the writeback daemon together and runs them alongside the
// control API until shutdown.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/sysctl"
	"github.com/marmos91/pagesweep/pkg/vfs"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

// DefaultShutdownTimeout bounds the final writeback pass and the unmount of
// every filesystem.
const DefaultShutdownTimeout = 30 * time.Second

// AuxiliaryServer is an HTTP server (API, metrics) managed by the runtime.
type AuxiliaryServer interface {
	// Start serves and blocks until ctx is cancelled or the server fails.
	Start(ctx context.Context) error
	// Stop initiates graceful shutdown.
	Stop(ctx context.Context) error
	// Port returns the TCP port the server is listening on.
	Port() int
}

// Options configures a Runtime. Zero values get defaults.
type Options struct {
	Mounts  *vfs.MountTable
	Hooks   *coherence.Hooks
	Pending *coherence.PendingWriteState

	Sweep        sweep.Config
	SweepMetrics sweep.Metrics

	Writeback        writeback.Config
	WritebackMetrics writeback.Metrics
	// WritebackEnabled starts the periodic daemon in Serve. SyncAll works
	// either way.
	WritebackEnabled bool

	// Quiet starts drop_caches with its audit line suppressed.
	Quiet bool

	ShutdownTimeout time.Duration
}

// Runtime owns every long-lived component of a sweepd process.
type Runtime struct {
	mounts     *vfs.MountTable
	hooks      *coherence.Hooks
	pending    *coherence.PendingWriteState
	engine     *sweep.Engine
	dropCaches *sysctl.DropCaches
	writeback  *writeback.Daemon

	writebackEnabled bool
	shutdownTimeout  time.Duration
	startedAt        time.Time

	mu            sync.RWMutex
	apiServer     AuxiliaryServer
	metricsServer AuxiliaryServer
	served        bool
	serveOnce     sync.Once
}

// New builds a runtime from opts.
func New(opts Options) *Runtime {
	if opts.Mounts == nil {
		opts.Mounts = vfs.NewMountTable(pagecache.NewBatcher(pagecache.BatchSize))
	}
	if opts.Hooks == nil {
		opts.Hooks = coherence.NewHooks()
	}
	if opts.Pending == nil {
		opts.Pending = coherence.NewPendingWriteState(coherence.DefaultLimits)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	engine := sweep.New(opts.Mounts, opts.Hooks, opts.SweepMetrics, opts.Sweep)
	return &Runtime{
		mounts:           opts.Mounts,
		hooks:            opts.Hooks,
		pending:          opts.Pending,
		engine:           engine,
		dropCaches:       sysctl.New(engine, opts.Quiet),
		writeback:        writeback.New(opts.Mounts, opts.Hooks, opts.WritebackMetrics, opts.Writeback),
		writebackEnabled: opts.WritebackEnabled,
		shutdownTimeout:  opts.ShutdownTimeout,
		startedAt:        time.Now(),
	}
}

// Mounts returns the mount table every component shares.
func (r *Runtime) Mounts() *vfs.MountTable { return r.mounts }

// Hooks returns the coherence hook table.
func (r *Runtime) Hooks() *coherence.Hooks { return r.hooks }

// Pending returns the pending-write record.
func (r *Runtime) Pending() *coherence.PendingWriteState { return r.pending }

// Engine returns the sweep engine.
func (r *Runtime) Engine() *sweep.Engine { return r.engine }

// DropCaches returns the vm.drop_caches knob.
func (r *Runtime) DropCaches() *sysctl.DropCaches { return r.dropCaches }

// Writeback returns the writeback daemon, started or not.
func (r *Runtime) Writeback() *writeback.Daemon { return r.writeback }

// StartedAt is when New returned.
func (r *Runtime) StartedAt() time.Time { return r.startedAt }

// Filesystem looks up a mounted filesystem by name.
func (r *Runtime) Filesystem(name string) (*vfs.Filesystem, error) {
	return r.mounts.Lookup(name)
}

// SweepFilesystem runs a full sweep of the named filesystem.
func (r *Runtime) SweepFilesystem(ctx context.Context, name string, policy sweep.Policy) (*sweep.Result, error) {
	fs, err := r.mounts.Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.engine.SweepOne(ctx, fs, policy)
}

// InvalidateFilesystem marks every stable inode of the named filesystem
// invalid.
func (r *Runtime) InvalidateFilesystem(ctx context.Context, name string) (int, error) {
	fs, err := r.mounts.Lookup(name)
	if err != nil {
		return 0, err
	}
	return r.engine.MarkInvalid(ctx, fs)
}

// Status is a point-in-time summary of the runtime.
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

// Status collects a Status from every component.
func (r *Runtime) Status() Status {
	return Status{
		StartedAt:   r.startedAt,
		Filesystems: len(r.mounts.List()),
		DropCaches:  r.dropCaches.Read(),
		Quiet:       r.dropCaches.Quiet(),
		VMStat:      r.engine.VMStat(),
		Writeback:   r.writeback.Stats(),
		Hooks:       r.hooks.Installed(),
		LastSweep:   r.engine.Last(),
		Pending:     r.pending.State(),
	}
}

// SetAPIServer registers the control API server. It must be called before
// Serve.
func (r *Runtime) SetAPIServer(server AuxiliaryServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.served {
		panic("cannot set API server after Serve() has been called")
	}
	r.apiServer = server
	if server != nil {
		logger.Info("API server registered", "port", server.Port())
	}
}

// SetMetricsServer registers the metrics server. It must be called before
// Serve.
func (r *Runtime) SetMetricsServer(server AuxiliaryServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.served {
		panic("cannot set metrics server after Serve() has been called")
	}
	r.metricsServer = server
	if server != nil {
		logger.Info("Metrics server registered", "port", server.Port())
	}
}

// Serve starts the writeback daemon and the auxiliary servers and blocks
// until ctx is cancelled or a server fails. Shutdown runs before it returns.
func (r *Runtime) Serve(ctx context.Context) error {
	var err error

	r.serveOnce.Do(func() {
		r.mu.Lock()
		r.served = true
		r.mu.Unlock()
		err = r.serve(ctx)
	})

	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting pagesweep runtime", "filesystems", len(r.mounts.List()))

	if r.writebackEnabled {
		r.writeback.Start(ctx)
	}

	errChan := make(chan error, 2)
	for name, srv := range map[string]AuxiliaryServer{"API": r.apiServer, "metrics": r.metricsServer} {
		if srv == nil {
			continue
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error(name+" server error", logger.Err(err))
				errChan <- fmt.Errorf("%s server error: %w", name, err)
			}
		}()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "reason", ctx.Err())
		shutdownErr = ctx.Err()

	case err := <-errChan:
		logger.Error("Server failed - initiating shutdown", logger.Err(err))
		shutdownErr = err
	}

	r.shutdown()
	return shutdownErr
}

// shutdown flushes dirty pages, stops the servers and unmounts every
// filesystem, in that order.
func (r *Runtime) shutdown() {
	if r.writebackEnabled {
		logger.Info("Stopping writeback daemon")
		r.writeback.Stop(r.shutdownTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	if pass, err := r.writeback.SyncAll(ctx); err != nil {
		logger.Warn("Error flushing dirty pages", logger.Err(err), logger.Pages(pass.Pages))
	} else if pass.Pages > 0 {
		logger.Info("Flushed dirty pages", logger.Pages(pass.Pages))
	}

	for name, srv := range map[string]AuxiliaryServer{"API": r.apiServer, "metrics": r.metricsServer} {
		if srv == nil {
			continue
		}
		logger.Debug("Stopping " + name + " server")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Stop(stopCtx); err != nil {
			logger.Error(name+" server shutdown error", logger.Err(err))
		}
		stopCancel()
	}

	logger.Info("Unmounting filesystems")
	if err := r.mounts.UnmountAll(ctx); err != nil {
		logger.Warn("Error unmounting filesystems", logger.Err(err))
	}
}
