package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
	"github.com/sparkq/sparkq/pkg/client"
)

func newQueueCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage task queues",
	}
	cmd.AddCommand(
		newQueueCreateCommand(opts),
		newQueueListCommand(opts),
		newQueueGetCommand(opts),
		newQueueEndCommand(opts),
		newQueueArchiveCommand(opts),
		newQueueUnarchiveCommand(opts),
		newQueueDeleteCommand(opts),
	)
	return cmd
}

func newQueueCreateCommand(opts *rootOptions) *cobra.Command {
	var sessionRef, instructions string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a queue in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(sessionRef, "--session"); err != nil {
				return err
			}
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			session, err := resolveSession(cmd, c, sessionRef)
			if err != nil {
				return err
			}
			queue, err := c.CreateQueue(cmd.Context(), session.ID, v1.CreateQueueRequest{
				Name:         args[0],
				Instructions: instructions,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(queue)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created queue %s (%s) in session %s\n",
				queue.Name, queue.ID, session.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "session name or id (required)")
	cmd.Flags().StringVar(&instructions, "instructions", "", "worker instructions attached to the queue")
	return cmd
}

func newQueueListCommand(opts *rootOptions) *cobra.Command {
	var sessionRef, query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			listOpts := client.ListQueuesOptions{Query: query}
			if sessionRef != "" {
				session, err := resolveSession(cmd, c, sessionRef)
				if err != nil {
					return err
				}
				listOpts.SessionID = session.ID
			}
			list, err := c.ListQueues(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(list)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tQUEUED\tRUNNING\tDONE")
			for _, q := range list.Queues {
				queued, running, done := 0, 0, 0
				if q.Stats != nil {
					queued, running, done = q.Stats.Queued, q.Stats.Running, q.Stats.Done
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", q.ID, q.Name, q.Status, queued, running, done)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "limit to one session (name or id)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter queues by name substring")
	return cmd
}

func newQueueGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name|id>",
		Short: "Show one queue with its task counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			queue, err := resolveQueue(cmd, c, args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(queue)
			}
			printQueue(cmd, queue)
			return nil
		},
	}
}

func newQueueEndCommand(opts *rootOptions) *cobra.Command {
	return newQueueTransitionCommand(opts, "end", "End a queue",
		func(c *client.Client, cmd *cobra.Command, id string) (*v1.Queue, error) {
			return c.EndQueue(cmd.Context(), id)
		})
}

func newQueueArchiveCommand(opts *rootOptions) *cobra.Command {
	return newQueueTransitionCommand(opts, "archive", "Archive an active queue",
		func(c *client.Client, cmd *cobra.Command, id string) (*v1.Queue, error) {
			return c.ArchiveQueue(cmd.Context(), id)
		})
}

func newQueueUnarchiveCommand(opts *rootOptions) *cobra.Command {
	return newQueueTransitionCommand(opts, "unarchive", "Bring an archived queue back",
		func(c *client.Client, cmd *cobra.Command, id string) (*v1.Queue, error) {
			return c.UnarchiveQueue(cmd.Context(), id)
		})
}

// newQueueTransitionCommand builds the end/archive/unarchive commands, which
// differ only in the client call they make.
func newQueueTransitionCommand(opts *rootOptions, verb, short string,
	transition func(*client.Client, *cobra.Command, string) (*v1.Queue, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name|id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			queue, err := resolveQueue(cmd, c, args[0])
			if err != nil {
				return err
			}
			queue, err = transition(c, cmd, queue.ID)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(queue)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queue %s is now %s\n", queue.Name, queue.Status)
			return nil
		},
	}
}

func newQueueDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name|id>",
		Short: "Delete a queue and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			queue, err := resolveQueue(cmd, c, args[0])
			if err != nil {
				return err
			}
			if err := c.DeleteQueue(cmd.Context(), queue.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted queue %s\n", queue.Name)
			return nil
		},
	}
}

func printQueue(cmd *cobra.Command, q *v1.Queue) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", q.ID)
	fmt.Fprintf(out, "Name:     %s\n", q.Name)
	fmt.Fprintf(out, "Session:  %s\n", q.SessionID)
	fmt.Fprintf(out, "Status:   %s\n", q.Status)
	if q.Instructions != "" {
		fmt.Fprintf(out, "Instructions: %s\n", q.Instructions)
	}
	if q.Stats != nil {
		fmt.Fprintf(out, "Tasks:    %d queued, %d running, %d done (%d total)\n",
			q.Stats.Queued, q.Stats.Running, q.Stats.Done, q.Stats.Total)
	}
	fmt.Fprintf(out, "Created:  %s\n", formatTime(q.CreatedAt))
	if q.EndedAt != nil {
		fmt.Fprintf(out, "Ended:    %s\n", formatTime(*q.EndedAt))
	}
	if q.ArchivedAt != nil {
		fmt.Fprintf(out, "Archived: %s\n", formatTime(*q.ArchivedAt))
	}
}
