package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/internal/telemetry"
	"github.com/marmos91/pagesweep/pkg/api"
	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/config"
	"github.com/marmos91/pagesweep/pkg/metrics"
	"github.com/marmos91/pagesweep/pkg/metrics/prometheus"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/runtime"
	"github.com/marmos91/pagesweep/pkg/vfs"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sweep daemon",
	Long: `Start sweepd in the foreground: mount the configured filesystems, run
the writeback daemon and serve the control API until SIGINT or SIGTERM.

On shutdown dirty pages are written back before the filesystems are
unmounted. Run it under a process supervisor (systemd, Kubernetes) for
background operation.

Without a configuration file a single in-memory "scratch" filesystem is
mounted.

Examples:
  # Start with the default config location
  sweepd start

  # Start with a custom config file
  sweepd start --config /etc/pagesweep/config.yaml

  # Override settings from the environment
  PAGESWEEP_LOGGING_LEVEL=DEBUG sweepd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the daemon PID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "sweepd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "sweepd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("sweepd starting", "version", Version, "commit", Commit)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	// Metrics first: the store, sweep and writeback constructors return nil
	// while the registry is unset.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		if err := prometheus.RegisterBufferPool(); err != nil {
			logger.Warn("failed to register page buffer metrics", logger.Err(err))
		}
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metricsServer, err := metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port))
		if err != nil {
			_ = rt.Mounts().UnmountAll(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		rt.SetMetricsServer(metricsServer)
	} else {
		logger.Info("Metrics collection disabled")
	}

	apiServer, err := api.NewServer(cfg.ControlPlane, rt)
	if err != nil {
		_ = rt.Mounts().UnmountAll(context.Background())
		return fmt.Errorf("failed to create API server: %w", err)
	}
	rt.SetAPIServer(apiServer)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := rt.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", logger.Err(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// buildRuntime mounts the configured filesystems and assembles the runtime
// around them.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime.Runtime, error) {
	mounts := vfs.NewMountTable(pagecache.NewBatcher(cfg.Sweep.BatchSize))
	mounted, err := config.MountFilesystems(ctx, mounts, cfg.Filesystems)
	if err != nil {
		_ = mounts.UnmountAll(context.Background())
		return nil, fmt.Errorf("failed to mount filesystems: %w", err)
	}
	for _, fs := range mounted {
		logger.Info("Filesystem mounted", logger.Filesystem(fs.Name()), "page_size", fs.PageSize())
	}

	hooks := coherence.NewHooks()
	if logger.IsDebug() {
		hooks.Install(coherence.LogHandlers())
	}

	return runtime.New(runtime.Options{
		Mounts:           mounts,
		Hooks:            hooks,
		Pending:          coherence.NewPendingWriteState(cfg.Coherence),
		Sweep:            cfg.Sweep.EngineConfig(),
		SweepMetrics:     metrics.NewSweepMetrics(),
		Writeback:        cfg.Writeback.DaemonConfig(),
		WritebackMetrics: metrics.NewWritebackMetrics(),
		WritebackEnabled: cfg.Writeback.IsEnabled(),
		Quiet:            cfg.Sweep.Quiet,
		ShutdownTimeout:  cfg.ShutdownTimeout,
	}), nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
