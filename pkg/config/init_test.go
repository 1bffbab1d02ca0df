package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	// XDG_CONFIG_HOME rather than HOME: os.UserHomeDir reads USERPROFILE on Windows.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# pagesweep Configuration File",
		"logging:",
		"controlplane:",
		"sweep:",
		"writeback:",
		"coherence:",
		"filesystems:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfigToPath_Force(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("First InitConfigToPath failed: %v", err)
	}
	first, _ := os.ReadFile(configPath)

	if err := InitConfigToPath(configPath, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}
	second, _ := os.ReadFile(configPath)

	if len(second) == 0 {
		t.Fatal("Recreated config file is empty")
	}
	if string(first) == string(second) {
		t.Error("Expected a fresh JWT secret after a forced init")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO log level in generated config, got %q", cfg.Logging.Level)
	}
	if cfg.ControlPlane.Port != 8080 {
		t.Errorf("Expected port 8080 in generated config, got %d", cfg.ControlPlane.Port)
	}
	if len(cfg.Filesystems) != 1 || cfg.Filesystems[0].Name != "scratch" {
		t.Errorf("Expected the scratch filesystem, got %+v", cfg.Filesystems)
	}
	if len(cfg.ControlPlane.JWT.Secret) < 32 {
		t.Errorf("Expected JWT secret of at least 32 chars, got %d", len(cfg.ControlPlane.JWT.Secret))
	}
}

func TestSchema(t *testing.T) {
	schema := Schema()

	if schema.Title != "pagesweep Configuration" {
		t.Errorf("Unexpected schema title %q", schema.Title)
	}
	for _, key := range []string{"logging", "sweep", "filesystems", "controlplane"} {
		if _, ok := schema.Properties.Get(key); !ok {
			t.Errorf("Schema missing property %q", key)
		}
	}
}
