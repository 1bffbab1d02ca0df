package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configHeader = `# pagesweep Configuration File
#
# Generated by 'sweepd config init'. Every key can be overridden with an
# environment variable: PAGESWEEP_<SECTION>_<KEY>, e.g.
# PAGESWEEP_LOGGING_LEVEL=DEBUG.
#
# Filesystems listed under 'filesystems' are mounted at startup. Store types:
#   memory  - pages live in process memory (lost on exit)
#   badger  - BadgerDB directory (store.badger.path)
#   s3      - S3 or S3-compatible bucket (store.s3.bucket)

`

// InitConfig writes a default configuration file to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path with a freshly
// generated JWT secret.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	secret, err := generateSecret()
	if err != nil {
		return err
	}
	cfg.ControlPlane.JWT.Secret = secret

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(path, append([]byte(configHeader), data...))
}

// generateSecret returns 64 hex characters of randomness.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
