package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/pagesweep/internal/bytesize"
	"github.com/marmos91/pagesweep/pkg/api"
	"github.com/marmos91/pagesweep/pkg/coherence"
)

// Config represents the sweepd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (PAGESWEEP_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown,
	// including the final writeback pass
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ControlPlane contains control API server configuration
	ControlPlane api.APIConfig `mapstructure:"controlplane" yaml:"controlplane"`

	// Sweep tunes the cache sweep engine and the drop_caches control
	Sweep SweepConfig `mapstructure:"sweep" yaml:"sweep"`

	// Writeback configures the background writeback daemon
	Writeback WritebackConfig `mapstructure:"writeback" yaml:"writeback"`

	// Coherence bounds the pending-write record shared with the
	// coordination layer
	Coherence coherence.Limits `mapstructure:"coherence" yaml:"coherence"`

	// Filesystems are mounted at startup, in order
	Filesystems []FilesystemConfig `mapstructure:"filesystems" validate:"dive" yaml:"filesystems"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines", "mutex_duration"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// SweepConfig tunes the sweep engine.
type SweepConfig struct {
	// TimeSlice is how long an inode walk runs before yielding the CPU
	// Default: 2ms
	TimeSlice time.Duration `mapstructure:"time_slice" validate:"gte=0" yaml:"time_slice"`

	// Parallelism bounds how many filesystems an all-mounts sweep walks at once
	// Default: 1 (serial)
	Parallelism int `mapstructure:"parallelism" validate:"gte=0,lte=256" yaml:"parallelism"`

	// LogPhases logs the duration of every sweep phase at INFO
	// Default: true
	LogPhases *bool `mapstructure:"log_phases" yaml:"log_phases"`

	// MaxShrinkPasses bounds the shrinker rounds of one slab drop
	// Default: 64
	MaxShrinkPasses int `mapstructure:"max_shrink_passes" validate:"gte=0" yaml:"max_shrink_passes"`

	// BatchSize is the capacity of the LRU add batch
	// Default: 15
	BatchSize int `mapstructure:"batch_size" validate:"gte=0" yaml:"batch_size"`

	// Quiet starts drop_caches with its quiet flag already set
	Quiet bool `mapstructure:"quiet" yaml:"quiet"`
}

// PhaseLogging reports whether phase logging is on. Defaults to true.
func (c *SweepConfig) PhaseLogging() bool {
	if c.LogPhases == nil {
		return true
	}
	return *c.LogPhases
}

// WritebackConfig configures the background writeback daemon.
type WritebackConfig struct {
	// Enabled starts the daemon. Use a pointer to distinguish "not set"
	// from "explicitly false".
	// Default: true
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between background passes
	// Default: 5s
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`

	// Workers is how many filesystems are flushed concurrently
	// Default: 2
	Workers int `mapstructure:"workers" validate:"gte=0" yaml:"workers"`
}

// IsEnabled returns whether the writeback daemon runs. Defaults to true.
func (c *WritebackConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// FilesystemConfig describes one filesystem to mount.
type FilesystemConfig struct {
	// Name identifies the filesystem in the API and the backing store keys
	Name string `mapstructure:"name" validate:"required,excludesall=/" yaml:"name"`

	// PageSize is the page and device block size
	// Supports human-readable formats: "4Ki", "16KiB"
	// Default: 4Ki
	PageSize bytesize.ByteSize `mapstructure:"page_size" yaml:"page_size,omitempty"`

	// Store is the backing store holding the filesystem's pages
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// StoreConfig selects and configures a backing store.
type StoreConfig struct {
	// Type is the store implementation
	// Valid values: memory, badger, s3
	// Default: memory
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3" yaml:"type"`

	Badger BadgerStoreConfig `mapstructure:"badger" yaml:"badger,omitempty"`
	S3     S3StoreConfig     `mapstructure:"s3" yaml:"s3,omitempty"`
}

// BadgerStoreConfig configures a BadgerDB backing store.
type BadgerStoreConfig struct {
	// Path is the database directory, required unless InMemory is set
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	InMemory   bool `mapstructure:"in_memory" yaml:"in_memory,omitempty"`
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes,omitempty"`
}

// S3StoreConfig configures an S3 backing store.
type S3StoreConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`

	// Region defaults to us-east-1
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the service URL (MinIO, Localstack)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	KeyPrefix      string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`

	// Static credentials; when empty the default AWS credential chain is used
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PAGESWEEP_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. A missing file yields the
// default configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load with user-friendly errors when the file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  sweepd config init\n\n"+
				"Or specify a custom config file:\n"+
				"  sweepd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  sweepd config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(path, data)
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// 0600: the file may carry the JWT secret and S3 keys.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: PAGESWEEP_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("PAGESWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings like "4Ki" and plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/pagesweep, ~/.config/pagesweep, or
// "." when no home directory can be found.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "pagesweep")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "pagesweep")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
