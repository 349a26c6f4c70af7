package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show project-wide totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			stats, err := c.ProjectStats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sessions:      %d\n", stats.Sessions)
			fmt.Fprintf(out, "Queues:        %d\n", stats.Queues)
			fmt.Fprintf(out, "Tasks queued:  %d\n", stats.TasksQueued)
			fmt.Fprintf(out, "Tasks running: %d\n", stats.TasksRunning)
			return nil
		},
	}
}
