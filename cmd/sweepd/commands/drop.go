package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/cli/prompt"
	"github.com/marmos91/pagesweep/pkg/apiclient"
	"github.com/marmos91/pagesweep/pkg/sysctl"
)

var dropYes bool

var dropCmd = &cobra.Command{
	Use:   "drop [value]",
	Short: "Read or write the drop_caches knob",
	Long: `Read or write the daemon's drop_caches knob.

Without an argument the current value is printed. A value is a bit mask:
  1  drain LRU batches and drop clean page cache on every filesystem
  2  shrink reclaimable objects until a pass frees little
  4  stop logging an audit line for later writes (sticky)

Examples:
  # Show the current value
  sweepd drop

  # Drop page cache and reclaimable objects
  sweepd drop 3 --yes

  # Silence the audit line
  sweepd drop 4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropYes, "yes", "y", false, "Do not ask for confirmation")
}

func runDrop(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		dc, err := client.GetDropCaches()
		if err != nil {
			return err
		}
		return printKeyValues(p, dc, [][2]string{
			{"drop_caches", strconv.Itoa(dc.Value)},
			{"quiet", strconv.FormatBool(dc.Quiet)},
		})
	}

	value, err := strconv.Atoi(args[0])
	if err != nil || value < sysctl.MinValue || value > sysctl.MaxValue {
		return fmt.Errorf("invalid value %q: want an integer in [%d, %d]", args[0], sysctl.MinValue, sysctl.MaxValue)
	}

	if flags := sysctl.DecodeFlags(value); flags.PageCache || flags.Slab {
		ok, err := prompt.ConfirmUnless(dropYes, "Drop caches on every mounted filesystem (value %d)", value)
		if err != nil {
			return err
		}
		if !ok {
			p.Warning("Aborted")
			return nil
		}
	}

	out, err := client.DropCaches(apiclient.DropCachesRequest{Value: value, Comm: "sweepd", PID: os.Getpid()})
	if err != nil {
		return err
	}
	return printKeyValues(p, out, dropSummary(out))
}
