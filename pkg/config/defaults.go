package config

import (
	"strings"
	"time"

	"github.com/marmos91/pagesweep/internal/bytesize"
	"github.com/marmos91/pagesweep/pkg/api"
	"github.com/marmos91/pagesweep/pkg/coherence"
	"github.com/marmos91/pagesweep/pkg/pagecache"
	"github.com/marmos91/pagesweep/pkg/sweep"
	"github.com/marmos91/pagesweep/pkg/vfs"
	"github.com/marmos91/pagesweep/pkg/writeback"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.ControlPlane.ApplyDefaults()
	applySweepDefaults(&cfg.Sweep)
	applyWritebackDefaults(&cfg.Writeback)
	applyCoherenceDefaults(&cfg.Coherence)
	for i := range cfg.Filesystems {
		applyFilesystemDefaults(&cfg.Filesystems[i])
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
			"mutex_duration",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
// Port defaults to 9090 only when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applySweepDefaults(cfg *SweepConfig) {
	if cfg.TimeSlice == 0 {
		cfg.TimeSlice = vfs.DefaultTimeSlice
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 1
	}
	if cfg.MaxShrinkPasses == 0 {
		cfg.MaxShrinkPasses = sweep.DefaultMaxShrinkPasses
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = pagecache.BatchSize
	}
}

func applyWritebackDefaults(cfg *WritebackConfig) {
	d := writeback.DefaultConfig()
	if cfg.Interval == 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Workers == 0 {
		cfg.Workers = d.Workers
	}
}

func applyCoherenceDefaults(cfg *coherence.Limits) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = coherence.DefaultLimits.MaxEntries
	}
	if cfg.MaxPathLen == 0 {
		cfg.MaxPathLen = coherence.DefaultLimits.MaxPathLen
	}
}

func applyFilesystemDefaults(cfg *FilesystemConfig) {
	if cfg.PageSize == 0 {
		cfg.PageSize = bytesize.ByteSize(vfs.DefaultPageSize)
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Type == "s3" && cfg.Store.S3.Region == "" {
		cfg.Store.S3.Region = "us-east-1"
	}
}

// EngineConfig converts the sweep section to the engine's configuration.
func (c *SweepConfig) EngineConfig() sweep.Config {
	return sweep.Config{
		TimeSlice:       c.TimeSlice,
		Parallelism:     c.Parallelism,
		LogPhases:       c.PhaseLogging(),
		MaxShrinkPasses: c.MaxShrinkPasses,
	}
}

// DaemonConfig converts the writeback section to the daemon's configuration.
func (c *WritebackConfig) DaemonConfig() writeback.Config {
	return writeback.Config{Interval: c.Interval, Workers: c.Workers}
}

// GetDefaultConfig returns a Config with every default applied and one
// in-memory scratch filesystem.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Running without a configuration file
func GetDefaultConfig() *Config {
	cfg := &Config{
		ControlPlane: api.APIConfig{},
		Filesystems: []FilesystemConfig{
			{
				Name:  "scratch",
				Store: StoreConfig{Type: "memory"},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
