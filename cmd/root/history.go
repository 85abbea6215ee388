package root

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/docker/eventreporter/pkg/cli"
	"github.com/docker/eventreporter/pkg/journal"
	"github.com/docker/eventreporter/pkg/paths"
)

func newHistoryCmd() *cobra.Command {
	var (
		journalPath string
		limit       int
	)

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List recent batch transmissions",
		Long:    "List the batch transmissions recorded by previous demo runs, newest first.",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			j, err := journal.Open(ctx, journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(ctx, limit)
			if err != nil {
				return cli.RuntimeError{Err: err}
			}
			summary, err := j.Summary(ctx)
			if err != nil {
				return cli.RuntimeError{Err: err}
			}

			cli.NewPrinter(cmd.OutOrStdout()).PrintHistory(entries, summary, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&journalPath, "journal", paths.JournalFile(), "Path to the transmission journal")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show (0 for all)")

	return cmd
}
