package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/cli/output"
	"github.com/marmos91/pagesweep/internal/logger"
	"github.com/marmos91/pagesweep/pkg/api/auth"
	"github.com/marmos91/pagesweep/pkg/apiclient"
	"github.com/marmos91/pagesweep/pkg/config"
)

// EnvToken supplies the bearer token when --token is not given.
const EnvToken = "SWEEPD_TOKEN"

// cliTokenTTL is the lifetime of tokens minted for a single CLI call.
const cliTokenTTL = 5 * time.Minute

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// newClient builds an API client from the global flags. The server URL and
// the token fall back to the local configuration file, so commands run on
// the daemon's host work without flags.
func newClient() (*apiclient.Client, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}

	url := serverURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d", cfg.ControlPlane.Port)
	}
	client := apiclient.New(url)

	token := authToken
	if token == "" {
		token = os.Getenv(EnvToken)
	}
	if token == "" {
		token, err = mintToken(cfg, "sweepd-cli", auth.RoleAdmin, cliTokenTTL)
		if err != nil {
			return nil, err
		}
	}
	client.SetToken(token)
	return client, nil
}

// mintToken signs a token with the configured secret. It returns an empty
// token when no secret is configured, since the daemon is then open.
func mintToken(cfg *config.Config, subject, role string, ttl time.Duration) (string, error) {
	svc, err := cfg.ControlPlane.NewJWTService()
	if err != nil || svc == nil {
		return "", err
	}
	tok, err := svc.GenerateToken(subject, role, ttl)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, isTerminal(cmd)), nil
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
