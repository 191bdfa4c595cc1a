package temporalworker

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx/jobrun"
)

// Runner hosts the workflow_run workflow and its tick activity.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	cfg  temporalx.Config
	runs repos.WorkflowRunRepo
	exec jobrun.Executor
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	cfg temporalx.Config,
	runs repos.WorkflowRunRepo,
	exec jobrun.Executor,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if runs == nil || exec == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{
		log:  log.With("component", "TemporalWorker"),
		tc:   tc,
		cfg:  cfg.WithDefaults(),
		runs: runs,
		exec: exec,
	}, nil
}

// Start starts polling, retrying until StartMaxWait passes. The worker stops
// when ctx is done. A missing namespace is registered between attempts when
// AutoRegisterNamespace is set.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	err := temporalx.Retry(ctx, r.log, cfg, cfg.StartMaxWait, "temporal worker start", func(ctx context.Context) (bool, error) {
		w := r.newWorker()
		if err := w.Start(); err != nil {
			w.Stop()
			var nfe *serviceerror.NamespaceNotFound
			if errors.As(err, &nfe) && cfg.AutoRegisterNamespace {
				if nerr := temporalx.EnsureNamespace(ctx, cfg, r.log); nerr != nil {
					r.log.Warn("Temporal namespace ensure failed", "namespace", cfg.Namespace, "error", nerr)
				}
			}
			return true, err
		}
		go func() {
			<-ctx.Done()
			w.Stop()
		}()
		return false, nil
	})
	if err != nil {
		var nfe *serviceerror.NamespaceNotFound
		if errors.As(err, &nfe) {
			return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, err)
		}
		return err
	}
	r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)
	return nil
}

func (r *Runner) newWorker() worker.Worker {
	// The SDK rejects a workflow task slot count of 1.
	wfSlots := r.cfg.MaxConcurrency
	if wfSlots < 2 {
		wfSlots = 2
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.cfg.MaxConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: wfSlots,
	})
	acts := &jobrun.Activities{Log: r.log, Runs: r.runs, Executor: r.exec}
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: jobrun.ActivityTick})
	return w
}
