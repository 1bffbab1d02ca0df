package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/cli/output"
)

var coherenceCmd = &cobra.Command{
	Use:   "coherence",
	Short: "Inspect the coherence hooks and the pending write state",
	Args:  cobra.NoArgs,
	RunE:  runCoherence,
}

var pendingAppendCmd = &cobra.Command{
	Use:   "append <path> <file-id>",
	Short: "Record a pending write",
	Args:  cobra.ExactArgs(2),
	RunE:  runPendingAppend,
}

var pendingResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the pending write state",
	Args:  cobra.NoArgs,
	RunE:  runPendingReset,
}

func init() {
	coherenceCmd.AddCommand(pendingAppendCmd)
	coherenceCmd.AddCommand(pendingResetCmd)
}

func runCoherence(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	c, err := client.Coherence()
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		return p.Print(c)
	}
	if err := output.KeyValues(p.Writer(), [][2]string{
		{"Hooks", hookSlots(c.Hooks)},
		{"Pending state", c.Pending.State.String()},
		{"Entries", itoa(len(c.Pending.Entries)) + "/" + itoa(c.Pending.Limits.MaxEntries)},
	}); err != nil {
		return err
	}
	if len(c.Pending.Entries) > 0 {
		p.Printf("\n")
		return output.PrintTable(p.Writer(), pendingTable(c.Pending))
	}
	return nil
}

func runPendingAppend(cmd *cobra.Command, args []string) error {
	fileID, err := strconv.ParseUint(args[1], 10, 64)
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

	snap, err := client.AppendPending(args[0], fileID)
	if err != nil {
		return err
	}
	return printResult(p, snap, pendingTable(*snap))
}

func runPendingReset(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	if err := client.ResetPending(); err != nil {
		return err
	}
	p.Success("Pending write state cleared")
	return nil
}
