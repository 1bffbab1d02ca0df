package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/cli/output"
	"github.com/marmos91/pagesweep/internal/cli/prompt"
	"github.com/marmos91/pagesweep/pkg/sweep"
)

var (
	sweepFS     string
	sweepPolicy string
	sweepYes    bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Drop cached pages",
	Long: `Sweep the page cache of one filesystem or of every mounted filesystem.

The lazy policy drops clean, unpinned pages only. The strict policy writes
dirty pages back first and then drops everything, pinned pages included.

Examples:
  # Lazy sweep of every filesystem
  sweepd sweep

  # Strict sweep of one filesystem
  sweepd sweep --fs scratch --policy strict --yes`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <filesystem>",
	Short: "Mark every cached inode of a filesystem invalid",
	Long: `Mark every stable inode of a filesystem invalid without dropping its
pages, and fire the invalidate coherence hook for each. Peers sharing the
backing store use this to force a refetch.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvalidate,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Write every dirty page back",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepFS, "fs", "", "Sweep only this filesystem")
	sweepCmd.Flags().StringVar(&sweepPolicy, "policy", "lazy", "Sweep policy (lazy|strict)")
	sweepCmd.Flags().BoolVarP(&sweepYes, "yes", "y", false, "Do not ask for confirmation")
}

func runSweep(cmd *cobra.Command, args []string) error {
	policy, err := sweep.ParsePolicy(sweepPolicy)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	if policy == sweep.Strict {
		target := "every mounted filesystem"
		if sweepFS != "" {
			target = fmt.Sprintf("filesystem %q", sweepFS)
		}
		ok, err := prompt.ConfirmUnless(sweepYes, "Strict sweep drops pinned pages on %s. Continue", target)
		if err != nil {
			return err
		}
		if !ok {
			p.Warning("Aborted")
			return nil
		}
	}

	var res *sweep.Result
	if sweepFS != "" {
		res, err = client.SweepFilesystem(sweepFS, policy.String())
	} else {
		res, err = client.SweepAll(policy.String())
	}
	if err != nil {
		return err
	}

	if p.Format() != output.FormatTable {
		return p.Print(res)
	}
	if err := output.KeyValues(p.Writer(), sweepSummary(res)); err != nil {
		return err
	}
	if len(res.Phases) > 0 {
		p.Printf("\n")
		return output.PrintTable(p.Writer(), sweepTable(res))
	}
	return nil
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	res, err := client.Invalidate(args[0])
	if err != nil {
		return err
	}
	if p.Format() == output.FormatTable {
		p.Success(fmt.Sprintf("Marked %d inodes of %s invalid", res.Marked, res.Filesystem))
		return nil
	}
	return p.Print(res)
}

func runSync(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	pass, err := client.Sync()
	if err != nil {
		return err
	}
	return printKeyValues(p, pass, passSummary(pass))
}
