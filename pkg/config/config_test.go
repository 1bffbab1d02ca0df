package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/pagesweep/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

controlplane:
  port: 8080
  jwt:
    secret: "test-secret-key-for-testing-minimum-32-chars"

filesystems:
  - name: data
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if len(cfg.Filesystems) != 1 {
		t.Fatalf("Expected 1 filesystem, got %d", len(cfg.Filesystems))
	}
	if cfg.Filesystems[0].Store.Type != "memory" {
		t.Errorf("Expected default store type 'memory', got %q", cfg.Filesystems[0].Store.Type)
	}
	if cfg.Filesystems[0].PageSize != 4*bytesize.KiB {
		t.Errorf("Expected default page size 4Ki, got %v", cfg.Filesystems[0].PageSize)
	}
	if !cfg.Sweep.PhaseLogging() {
		t.Error("Expected phase logging to default to on")
	}
	if !cfg.Writeback.IsEnabled() {
		t.Error("Expected writeback to default to enabled")
	}
}

func TestLoad_HumanReadableValues(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
sweep:
  time_slice: 500us
  parallelism: 4
  log_phases: false
writeback:
  enabled: false
  interval: 1m
filesystems:
  - name: fast
    page_size: 16Ki
  - name: durable
    page_size: 8192
    store:
      type: badger
      badger:
        path: "`+yamlSafePath(dir)+`/badger"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Sweep.TimeSlice != 500*time.Microsecond {
		t.Errorf("Expected time_slice 500us, got %v", cfg.Sweep.TimeSlice)
	}
	if cfg.Sweep.PhaseLogging() {
		t.Error("Expected log_phases false to disable phase logging")
	}
	if cfg.Writeback.IsEnabled() {
		t.Error("Expected writeback to be disabled")
	}
	if cfg.Writeback.Interval != time.Minute {
		t.Errorf("Expected writeback interval 1m, got %v", cfg.Writeback.Interval)
	}
	if cfg.Filesystems[0].PageSize != 16*bytesize.KiB {
		t.Errorf("Expected page size 16Ki, got %v", cfg.Filesystems[0].PageSize)
	}
	if cfg.Filesystems[1].PageSize != 8192 {
		t.Errorf("Expected page size 8192, got %v", cfg.Filesystems[1].PageSize)
	}

	ec := cfg.Sweep.EngineConfig()
	if ec.Parallelism != 4 || ec.LogPhases {
		t.Errorf("Unexpected engine config %+v", ec)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.ControlPlane.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.ControlPlane.Port)
	}
	if len(cfg.Filesystems) != 1 || cfg.Filesystems[0].Name != "scratch" {
		t.Errorf("Expected the scratch filesystem, got %+v", cfg.Filesystems)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
filesystems:
  - name: a
    store:
      type: s3
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for S3 store without bucket")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[controlplane]
port = 8081

[[filesystems]]
name = "data"
page_size = "4Ki"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.ControlPlane.Port != 8081 {
		t.Errorf("Expected port 8081, got %d", cfg.ControlPlane.Port)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Filesystems[0].PageSize = 8 * bytesize.KiB
	cfg.Sweep.Quiet = true
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Filesystems[0].PageSize != 8*bytesize.KiB {
		t.Errorf("Expected page size 8Ki after round trip, got %v", loaded.Filesystems[0].PageSize)
	}
	if !loaded.Sweep.Quiet {
		t.Error("Expected quiet to survive the round trip")
	}
	if loaded.ShutdownTimeout != cfg.ShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", cfg.ShutdownTimeout, loaded.ShutdownTimeout)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.ControlPlane.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.ControlPlane.Port)
	}
	if cfg.Coherence.MaxEntries != 1024 || cfg.Coherence.MaxPathLen != 256 {
		t.Errorf("Unexpected coherence limits %+v", cfg.Coherence)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if filepath.Base(GetConfigDir()) != "pagesweep" {
		t.Errorf("Expected directory name 'pagesweep', got %q", filepath.Base(GetConfigDir()))
	}
}

func TestDefaultConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if DefaultConfigExists() {
		t.Fatal("Expected no config in an empty config dir")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !DefaultConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("PAGESWEEP_LOGGING_LEVEL", "ERROR")
	t.Setenv("PAGESWEEP_CONTROLPLANE_PORT", "9091")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

controlplane:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.ControlPlane.Port != 9091 {
		t.Errorf("Expected port 9091 from env var, got %d", cfg.ControlPlane.Port)
	}
}
