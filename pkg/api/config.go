package api

import (
	"fmt"
	"os"
	"time"

	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/api/auth"
)

// EnvControlPlaneSecret overrides JWTConfig.Secret when set.
const EnvControlPlaneSecret = "PAGESWEEP_CONTROLPLANE_SECRET"

// APIConfig configures the control API HTTP server.
type APIConfig struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Strict sweeps over large
	// filesystems can take a while, so keep it above the expected sweep time.
	// Default: 60s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout bounds each handler, including the sweep it runs.
	// Default: 60s
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// JWT configures bearer tokens for mutating endpoints.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig configures token signing and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key, at least 32 characters.
	// When empty (and PAGESWEEP_CONTROLPLANE_SECRET is unset) mutating
	// endpoints are open.
	Secret string `mapstructure:"secret" validate:"omitempty,min=32" yaml:"secret"`

	// Issuer is the token issuer claim.
	// Default: "pagesweep"
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// TokenDuration is the lifetime of tokens minted by `sweepd token`.
	// Default: 1h
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "pagesweep"
	}
	if c.JWT.TokenDuration == 0 {
		c.JWT.TokenDuration = time.Hour
	}
}

// GetJWTSecret returns the JWT secret, preferring the environment variable.
// Returns empty string if neither env var nor config secret is set.
func (c *APIConfig) GetJWTSecret() string {
	envSecret := os.Getenv(EnvControlPlaneSecret)
	if envSecret != "" {
		if c.JWT.Secret != "" && c.JWT.Secret != envSecret {
			logger.Warn("JWT secret from environment variable overrides config file value",
				"env_var", EnvControlPlaneSecret)
		}
		return envSecret
	}
	return c.JWT.Secret
}

// HasJWTSecret returns whether a JWT secret is configured.
func (c *APIConfig) HasJWTSecret() bool {
	return c.GetJWTSecret() != ""
}

// NewJWTService builds the token service from the configured secret. It
// returns nil without error when no secret is configured.
func (c *APIConfig) NewJWTService() (*auth.JWTService, error) {
	secret := c.GetJWTSecret()
	if secret == "" {
		return nil, nil
	}
	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:        secret,
		Issuer:        c.JWT.Issuer,
		TokenDuration: c.JWT.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("JWT secret must be at least 32 characters; set via %s env var or config: %w",
			EnvControlPlaneSecret, err)
	}
	return svc, nil
}
