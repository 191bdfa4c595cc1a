package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// StaleAfter is how long a running run may go without a heartbeat before
	// another worker reclaims it.
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	runs     repos.WorkflowRunRepo
	steps    repos.WorkflowStepRepo
	registry *runtime.Registry
	events   runtime.Enqueuer
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, runs repos.WorkflowRunRepo, steps repos.WorkflowStepRepo, registry *runtime.Registry, enq runtime.Enqueuer, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "WorkflowWorker"),
		runs:     runs,
		steps:    steps,
		registry: registry,
		events:   enq,
		cfg:      cfg.withDefaults(),
	}
}

func (w *Worker) StaleAfter() time.Duration { return w.cfg.StaleAfter }

// Start launches the poll loops. They stop when ctx is done; Wait blocks
// until they have.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting workflow worker pool",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
		"stale_after", w.cfg.StaleAfter.String(),
		"workflow_types", w.registry.Types(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain everything due before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one runnable run.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	run, err := w.runs.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.StaleAfter)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	w.Execute(ctx, run)
	return true, nil
}

// Execute dispatches an already claimed run to its handler. Handler errors and
// panics fail the run.
func (w *Worker) Execute(ctx context.Context, run *types.WorkflowRun) {
	jc := runtime.NewContext(ctx, w.db, run, w.runs, w.steps, w.events, w.log)
	h, ok := w.registry.Get(run.WorkflowType)
	if !ok {
		w.log.Warn("No handler registered for workflow_type",
			"workflow_type", run.WorkflowType,
			"run_id", run.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{WorkflowType: run.WorkflowType})
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(hbCtx, run)

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Workflow handler panic",
				"run_id", run.ID,
				"workflow_type", run.WorkflowType,
				"panic", r,
			)
			jc.Fail("panic", errFromRecover(r))
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		if ctx.Err() != nil {
			return
		}
		// Handlers normally end the run themselves; this is a safety net.
		jc.Fail("run", runErr)
	}
}

func (w *Worker) heartbeat(ctx context.Context, run *types.WorkflowRun) {
	every := w.cfg.StaleAfter / 3
	if every <= 0 {
		every = 10 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.runs.Heartbeat(dbctx.Context{Ctx: ctx}, run.ID); err != nil && ctx.Err() == nil {
				w.log.Warn("Heartbeat failed", "run_id", run.ID, "error", err)
			}
		}
	}
}

type missingHandlerError struct{ WorkflowType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for workflow_type=" + e.WorkflowType
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
