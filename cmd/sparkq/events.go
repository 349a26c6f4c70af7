package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparkq/sparkq/pkg/client"
)

func newEventsCommand(opts *rootOptions) *cobra.Command {
	var subjects []string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the live event feed",
		Long:  "Events connects to the daemon's websocket feed and prints events as they happen. Subjects take NATS-style wildcards, e.g. 'task.>' or 'queue.*'; no subject means everything. Interrupt to stop.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stream, err := c.StreamFeed(ctx, subjects, client.FeedCallbacks{
				OnConnected: func() {
					fmt.Fprintln(cmd.ErrOrStderr(), "Connected, waiting for events...")
				},
				OnEvent: func(action string, payload json.RawMessage) {
					printFeedEvent(cmd, opts, action, payload)
				},
				OnError: func(code, message string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "feed error %s: %s\n", code, message)
				},
			})
			if err != nil {
				return err
			}
			defer stream.Close()

			select {
			case <-ctx.Done():
			case <-stream.Done():
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&subjects, "subject", nil, "subject filter, repeatable (e.g. 'task.>')")
	return cmd
}

func printFeedEvent(cmd *cobra.Command, opts *rootOptions, action string, payload json.RawMessage) {
	if opts.jsonOut {
		line, err := json.Marshal(struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload,omitempty"`
		}{Event: action, Payload: payload})
		if err != nil {
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(line))
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %s\n",
		time.Now().Format("15:04:05"), action, string(payload))
}
