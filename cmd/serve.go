package main

import (
	"github.com/spf13/cobra"

	"github.com/andychuong/ai-study-companion-sub000/internal/app"
)

func serveCmd() *cobra.Command {
	var noWorker, noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the internal event API, run workflows and schedule engagement sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(ctx, app.Roles{Worker: !noWorker, Scheduler: !noScheduler}); err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not execute workflow runs in this process")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not schedule engagement sweeps from this process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute workflow runs without serving HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(ctx, app.Roles{Worker: true}); err != nil {
				return err
			}
			a.Log.Info("Worker running; waiting for shutdown signal")
			<-ctx.Done()
			return nil
		},
	}
}
