package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func newSessionCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage work sessions",
	}
	cmd.AddCommand(
		newSessionCreateCommand(opts),
		newSessionListCommand(opts),
		newSessionGetCommand(opts),
		newSessionEndCommand(opts),
		newSessionDeleteCommand(opts),
	)
	return cmd
}

func newSessionCreateCommand(opts *rootOptions) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			session, err := c.CreateSession(cmd.Context(), v1.CreateSessionRequest{
				Name:        args[0],
				Description: description,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(session)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (%s)\n", session.Name, session.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "free-form session description")
	return cmd
}

func newSessionListCommand(opts *rootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			list, err := c.ListSessions(cmd.Context(), query)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(list)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTARTED")
			for _, s := range list.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, formatTime(s.StartedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "filter sessions by name substring")
	return cmd
}

func newSessionGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name|id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			session, err := resolveSession(cmd, c, args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(session)
			}
			printSession(cmd, session)
			return nil
		},
	}
}

func newSessionEndCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "end <name|id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			session, err := resolveSession(cmd, c, args[0])
			if err != nil {
				return err
			}
			session, err = c.EndSession(cmd.Context(), session.ID)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(session)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ended session %s\n", session.Name)
			return nil
		},
	}
}

func newSessionDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name|id>",
		Short: "Delete a session and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			session, err := resolveSession(cmd, c, args[0])
			if err != nil {
				return err
			}
			if err := c.DeleteSession(cmd.Context(), session.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", session.Name)
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, s *v1.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", s.ID)
	fmt.Fprintf(out, "Name:        %s\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", s.Description)
	}
	fmt.Fprintf(out, "Status:      %s\n", s.Status)
	fmt.Fprintf(out, "Started:     %s\n", formatTime(s.StartedAt))
	if s.EndedAt != nil {
		fmt.Fprintf(out, "Ended:       %s\n", formatTime(*s.EndedAt))
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
