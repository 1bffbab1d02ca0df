package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show the state of a running daemon: uptime, the drop_caches value, the
vm event counters, writeback totals, installed coherence hooks and the last
sweep.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var filesystemsCmd = &cobra.Command{
	Use:     "filesystems [name]",
	Aliases: []string{"fs"},
	Short:   "List mounted filesystems, or show one with its inodes",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runFilesystems,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	st, err := client.Status()
	if err != nil {
		return err
	}
	return printKeyValues(p, st, statusSummary(st))
}

func runFilesystems(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		list, err := client.ListFilesystems()
		if err != nil {
			return err
		}
		return printResult(p, list, filesystemsTable(list))
	}

	fs, err := client.GetFilesystem(args[0])
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		return p.Print(fs)
	}
	if err := output.KeyValues(p.Writer(), [][2]string{
		{"Name", fs.Name},
		{"Page size", itoa(fs.PageSize)},
		{"Device buffers", itoa(fs.Buffers.Pages)},
	}); err != nil {
		return err
	}
	p.Printf("\n")
	return output.PrintTable(p.Writer(), inodesTable(fs))
}
