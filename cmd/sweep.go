package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andychuong/ai-study-companion-sub000/internal/app"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

func sweepCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one engagement sweep now",
		Long: `Enqueue an out-of-schedule engagement sweep. Without Temporal the sweep is
executed in this process and the command waits for it to finish.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.Services.Sweeps.TriggerNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "engagement sweep run %s enqueued\n", run.ID)
			if a.Services.Temporal != nil {
				return nil
			}
			return drainUntilDone(ctx, a, run.ID, timeout, cmd)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for the sweep to finish")
	return cmd
}

// drainUntilDone executes runnable runs in-process until runID is terminal.
func drainUntilDone(ctx context.Context, a *app.App, runID uuid.UUID, timeout time.Duration, cmd *cobra.Command) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		ran, err := a.Services.JobWorker.RunOnce(ctx)
		if err != nil {
			return err
		}
		run, err := a.Repos.Runs.GetByID(dbctx.Context{Ctx: ctx}, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		switch run.Status {
		case jobs.RunSucceeded:
			fmt.Fprintf(cmd.OutOrStdout(), "run %s succeeded\n", run.ID)
			return nil
		case jobs.RunFailed:
			return fmt.Errorf("run %s failed at %s: %s", run.ID, run.Stage, run.Error)
		}
		if !ran {
			select {
			case <-ctx.Done():
				return fmt.Errorf("run %s still %s: %w", run.ID, run.Status, ctx.Err())
			case <-time.After(a.Cfg.Worker.PollInterval):
			}
		}
	}
}
