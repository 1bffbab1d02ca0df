package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/pkg/api/auth"
	"github.com/marmos91/pagesweep/pkg/config"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a control API token from the configured secret",
	Long: `Sign a bearer token with controlplane.jwt.secret (or $PAGESWEEP_CONTROLPLANE_SECRET).

Admin tokens may call every endpoint. Viewer tokens are only useful against
reverse proxies that forward them; the daemon itself leaves reads open.

Examples:
  # Token for an automation job
  export SWEEPD_TOKEN=$(sweepd token --subject cron-sweeper --ttl 24h)`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject, recorded as the caller of drop_caches writes")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "Token role (admin|viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: controlplane.jwt.token_duration)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	token, err := mintToken(cfg, tokenSubject, tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no JWT secret configured; the control API is open")
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
