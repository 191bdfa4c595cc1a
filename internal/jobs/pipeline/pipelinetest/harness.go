// Package pipelinetest runs pipelines end to end against a test database:
// events go through the real EventService and runs through the real worker.
package pipelinetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/worker"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/services"
)

type Env struct {
	DB       *gorm.DB
	Set      repos.Set
	Log      *logger.Logger
	Events   services.EventService
	Engine   *orchestrator.Engine
	Defs     *orchestrator.Definitions
	registry *runtime.Registry
	worker   *worker.Worker
}

// New builds an environment whose step retries back off by milliseconds.
func New(t *testing.T) *Env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	reg := runtime.NewRegistry()
	evs := services.NewEventService(db, log, set.Runs, set.Steps, nil)
	engine := orchestrator.NewEngine(log)
	engine.JournalRetry = time.Millisecond
	defs := orchestrator.Load(log, "").WithBackoff(time.Millisecond, 2*time.Millisecond)
	return &Env{
		DB:       db,
		Set:      set,
		Log:      log,
		Events:   evs,
		Engine:   engine,
		Defs:     defs,
		registry: reg,
		worker:   worker.NewWorker(db, log, set.Runs, set.Steps, reg, evs, worker.Config{Concurrency: 1, StaleAfter: time.Minute}),
	}
}

func (e *Env) Register(t *testing.T, handlers ...runtime.Handler) {
	t.Helper()
	for _, h := range handlers {
		require.NoError(t, e.registry.Register(h))
	}
}

// Emit enqueues an event built from data.
func (e *Env) Emit(t *testing.T, name string, data any) (*types.WorkflowRun, bool) {
	t.Helper()
	ev, err := events.New(name, data)
	require.NoError(t, err)
	run, created, err := e.Events.Enqueue(context.Background(), ev)
	require.NoError(t, err)
	return run, created
}

// Drain runs the worker until no queued or running run is left.
func (e *Env) Drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		ran, err := e.worker.RunOnce(ctx)
		require.NoError(t, err)
		if ran {
			continue
		}
		pending := 0
		for _, status := range []string{jobs.RunQueued, jobs.RunRunning} {
			rows, err := e.Set.Runs.ListRecent(dbctx.Context{Ctx: ctx}, status, 500)
			require.NoError(t, err)
			pending += len(rows)
		}
		if pending == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("runs still pending after drain deadline")
}

func (e *Env) Run(t *testing.T, id uuid.UUID) *types.WorkflowRun {
	t.Helper()
	run, err := e.Set.Runs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	require.NotNil(t, run, "run %s", id)
	return run
}

// Step returns the journal row for one step of a run.
func (e *Env) Step(t *testing.T, run *types.WorkflowRun, name string) *types.WorkflowStep {
	t.Helper()
	row, err := e.Set.Steps.Get(dbctx.Context{Ctx: context.Background()}, run.ID, name)
	require.NoError(t, err)
	return row
}
