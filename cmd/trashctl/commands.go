package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trashbin/app"
	"trashbin/models"
)

func newScanCmd(open opener) *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find overdue trash and queue purge tasks for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if enqueue {
					created, err := a.Scheduler.TriggerScan(ctx)
					if err != nil {
						return err
					}
					if created {
						fmt.Fprintln(cmd.OutOrStdout(), "scan queued")
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "scan already queued")
					}
					return nil
				}
				res, err := a.Scanner.Scan(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, enqueued %d, batches %d\n", res.Scanned, res.Enqueued, res.Batches)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the scan for the workers instead of running it here")
	return cmd
}

func newTasksCmd(open opener) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List queued purge tasks ordered by run time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch models.TaskStatus(status) {
			case "", models.TaskStatusPending, models.TaskStatusActive:
			default:
				return fmt.Errorf("invalid status %q (expected pending or active)", status)
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				tasks, err := a.Queue.List(ctx, models.TaskStatus(status), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tRUN AT\tATTEMPTS\tLAST ERROR")
				for _, t := range tasks {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
						t.ID, t.Status, t.RunAt.Format(time.RFC3339), t.Attempts, t.MaxAttempts, t.LastError)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending or active)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of tasks")
	return cmd
}

func newFailuresCmd(open opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List dead-lettered purge tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				failed, err := a.Queue.Failures(ctx, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TASK\tFAILED AT\tATTEMPTS\tERROR")
				for _, f := range failed {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.TaskID, f.FailedAt.Format(time.RFC3339), f.Attempts, f.LastError)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of failures")
	return cmd
}

func newCancelCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Remove a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				removed, err := a.Queue.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no pending task %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
				return nil
			})
		},
	}
}

func newDrainCmd(open opener) *cobra.Command {
	var maxTasks int
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process due tasks in this process until none are left",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				n := 0
				for maxTasks <= 0 || n < maxTasks {
					ran, err := a.Worker.RunOnce(ctx)
					if err != nil {
						return err
					}
					if !ran {
						break
					}
					n++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d tasks\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxTasks, "max", 0, "stop after this many tasks (0 means no limit)")
	return cmd
}
