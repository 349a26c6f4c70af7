package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
	"github.com/sparkq/sparkq/pkg/client"
)

func newTaskCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Enqueue and drive tasks",
	}
	cmd.AddCommand(
		newTaskAddCommand(opts),
		newTaskQuickAddCommand(opts),
		newTaskListCommand(opts),
		newTaskGetCommand(opts),
		newTaskClaimCommand(opts),
		newTaskCompleteCommand(opts),
		newTaskFailCommand(opts),
		newTaskRequeueCommand(opts),
		newTaskDeleteCommand(opts),
	)
	return cmd
}

func newTaskAddCommand(opts *rootOptions) *cobra.Command {
	var queueRef, taskClass, payload string
	var timeout int

	cmd := &cobra.Command{
		Use:   "add <tool>",
		Short: "Enqueue a task",
		Long:  "Add enqueues a task for the given tool. Timeout falls back to the tool's task class when not set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(queueRef, "--queue"); err != nil {
				return err
			}
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			queue, err := resolveQueue(cmd, c, queueRef)
			if err != nil {
				return err
			}
			task, err := c.EnqueueTask(cmd.Context(), v1.CreateTaskRequest{
				QueueID:   queue.ID,
				ToolName:  args[0],
				TaskClass: taskClass,
				Timeout:   timeout,
				Payload:   payload,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s (%s) on queue %s\n",
				task.FriendlyID, task.ID, queue.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&queueRef, "queue", "Q", "", "queue name or id (required)")
	cmd.Flags().StringVar(&taskClass, "class", "", "task class override")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload handed to the worker")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "timeout in seconds (default: from task class)")
	return cmd
}

func newTaskQuickAddCommand(opts *rootOptions) *cobra.Command {
	var queueRef, mode, prompt, tool, scriptPath string
	var scriptArgs []string

	cmd := &cobra.Command{
		Use:   "quick-add",
		Short: "Enqueue a task from a prompt or a script path",
		Long:  "Quick-add derives tool, class and payload from a compact description: --mode llm takes --prompt, --mode script takes --script plus --arg.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(queueRef, "--queue"); err != nil {
				return err
			}
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			queue, err := resolveQueue(cmd, c, queueRef)
			if err != nil {
				return err
			}
			task, err := c.QuickAdd(cmd.Context(), v1.QuickAddRequest{
				QueueID:    queue.ID,
				Mode:       mode,
				Prompt:     prompt,
				ToolName:   tool,
				ScriptPath: scriptPath,
				ScriptArgs: scriptArgs,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s (%s, tool %s) on queue %s\n",
				task.FriendlyID, task.ID, task.ToolName, queue.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&queueRef, "queue", "Q", "", "queue name or id (required)")
	cmd.Flags().StringVar(&mode, "mode", v1.QuickAddModeLLM, "llm or script")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text (llm mode)")
	cmd.Flags().StringVar(&tool, "tool", "", "tool override (llm mode)")
	cmd.Flags().StringVar(&scriptPath, "script", "", "script path (script mode)")
	cmd.Flags().StringArrayVar(&scriptArgs, "arg", nil, "script argument, repeatable (script mode)")
	return cmd
}

func newTaskListCommand(opts *rootOptions) *cobra.Command {
	var queueRef, status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			listOpts := client.ListTasksOptions{
				Status: v1.TaskStatus(status),
				Limit:  limit,
				Offset: offset,
			}
			if queueRef != "" {
				queue, err := resolveQueue(cmd, c, queueRef)
				if err != nil {
					return err
				}
				listOpts.QueueID = queue.ID
			}
			list, err := c.ListTasks(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(list)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FRIENDLY\tID\tTOOL\tSTATUS\tATTEMPTS\tCREATED")
			for _, t := range list.Tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					t.FriendlyID, t.ID, t.ToolName, t.Status, t.Attempts, formatTime(t.CreatedAt))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if list.Total > len(list.Tasks) {
				fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d)\n", len(list.Tasks), list.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&queueRef, "queue", "Q", "", "limit to one queue (name or id)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: queued, running, succeeded, failed")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newTaskGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			task, err := c.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			printTask(cmd, task)
			return nil
		},
	}
}

func newTaskClaimCommand(opts *rootOptions) *cobra.Command {
	var workerID string

	cmd := &cobra.Command{
		Use:   "claim <queue-name|queue-id>",
		Short: "Claim the oldest queued task in a queue",
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
			task, err := c.ClaimTask(cmd.Context(), queue.ID, workerID)
			if err != nil {
				return err
			}
			if task == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Queue %s has no queued tasks\n", queue.Name)
				return nil
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			printTask(cmd, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&workerID, "worker", "", "worker identifier echoed in the claim response")
	return cmd
}

func newTaskCompleteCommand(opts *rootOptions) *cobra.Command {
	var summary, data string

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a running task succeeded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(summary, "--summary"); err != nil {
				return err
			}
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			task, err := c.CompleteTask(cmd.Context(), args[0], v1.CompleteTaskRequest{
				ResultSummary: summary,
				ResultData:    data,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s succeeded\n", task.FriendlyID)
			return nil
		},
	}

	cmd.Flags().StringVar(&summary, "summary", "", "one-line result summary (required)")
	cmd.Flags().StringVar(&data, "data", "", "structured result data")
	return cmd
}

func newTaskFailCommand(opts *rootOptions) *cobra.Command {
	var message, errType string

	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a task failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireArg(message, "--message"); err != nil {
				return err
			}
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			task, err := c.FailTask(cmd.Context(), args[0], v1.FailTaskRequest{
				ErrorMessage: message,
				ErrorType:    errType,
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s failed: %s\n", task.FriendlyID, task.Error)
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "what went wrong (required)")
	cmd.Flags().StringVar(&errType, "type", "", "error type prefix, e.g. SCRIPT or TIMEOUT")
	return cmd
}

func newTaskRequeueCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Clone a finished task back onto its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			task, err := c.RequeueTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued as %s (%s)\n", task.FriendlyID, task.ID)
			return nil
		},
	}
}

func newTaskDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			if err := c.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}
}

func printTask(cmd *cobra.Command, t *v1.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", t.ID)
	fmt.Fprintf(out, "Friendly:  %s\n", t.FriendlyID)
	fmt.Fprintf(out, "Queue:     %s\n", t.QueueID)
	fmt.Fprintf(out, "Tool:      %s (%s)\n", t.ToolName, t.TaskClass)
	fmt.Fprintf(out, "Status:    %s\n", t.Status)
	fmt.Fprintf(out, "Timeout:   %ds\n", t.Timeout)
	fmt.Fprintf(out, "Attempts:  %d\n", t.Attempts)
	if t.Payload != "" {
		fmt.Fprintf(out, "Payload:   %s\n", t.Payload)
	}
	if t.ResultSummary != "" {
		fmt.Fprintf(out, "Result:    %s\n", t.ResultSummary)
	}
	if t.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", t.Error)
	}
	fmt.Fprintf(out, "Created:   %s\n", formatTime(t.CreatedAt))
	if t.StartedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", formatTime(*t.StartedAt))
	}
	if t.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", formatTime(*t.FinishedAt))
	}
}
