package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

type funcHandler struct {
	name string
	run  func(*runtime.Context) error
}

func (h funcHandler) Type() string                  { return h.name }
func (h funcHandler) Run(jc *runtime.Context) error { return h.run(jc) }

func setup(t *testing.T, handlers ...runtime.Handler) (*Worker, repos.Set) {
	t.Helper()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	w := NewWorker(db, testutil.Logger(t), set.Runs, set.Steps, reg, nil, Config{Concurrency: 2, PollInterval: 5 * time.Millisecond, StaleAfter: time.Minute})
	return w, set
}

func enqueue(t *testing.T, set repos.Set, workflowType string) *types.WorkflowRun {
	t.Helper()
	run, _, err := set.Runs.CreateOrGet(dbctx.Context{Ctx: context.Background()}, &types.WorkflowRun{WorkflowType: workflowType, DedupeKey: workflowType + ":" + uuid.NewString()})
	require.NoError(t, err)
	return run
}

func status(t *testing.T, set repos.Set, run *types.WorkflowRun) *types.WorkflowRun {
	t.Helper()
	got, err := set.Runs.GetByID(dbctx.Context{Ctx: context.Background()}, run.ID)
	require.NoError(t, err)
	return got
}

func TestRunOnceDispatchesByWorkflowType(t *testing.T) {
	w, set := setup(t, funcHandler{name: "GoalCreated", run: func(jc *runtime.Context) error {
		jc.Succeed("done", nil)
		return nil
	}})
	run := enqueue(t, set, "GoalCreated")

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, jobs.RunSucceeded, status(t, set, run).Status)

	ran, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "queue is empty")
}

func TestMissingHandlerAndPanicFailTheRun(t *testing.T) {
	w, set := setup(t,
		funcHandler{name: "Boom", run: func(*runtime.Context) error { panic("nil pointer") }},
		funcHandler{name: "Err", run: func(*runtime.Context) error { return errors.New("broken") }},
	)
	unknown := enqueue(t, set, "Unknown")
	boom := enqueue(t, set, "Boom")
	failing := enqueue(t, set, "Err")

	for i := 0; i < 3; i++ {
		_, err := w.RunOnce(context.Background())
		require.NoError(t, err)
	}
	got := status(t, set, unknown)
	assert.Equal(t, jobs.RunFailed, got.Status)
	assert.Equal(t, "dispatch", got.Stage)
	got = status(t, set, boom)
	assert.Equal(t, jobs.RunFailed, got.Status)
	assert.Contains(t, got.Error, "nil pointer")
	assert.Equal(t, "run", status(t, set, failing).Stage)
}

func TestPoolDrainsQueueAndStopsCleanly(t *testing.T) {
	var done atomic.Int32
	w, set := setup(t, funcHandler{name: "EngagementSweep", run: func(jc *runtime.Context) error {
		done.Add(1)
		jc.Succeed("done", nil)
		return nil
	}})
	for i := 0; i < 5; i++ {
		enqueue(t, set, "EngagementSweep")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	assert.Eventually(t, func() bool { return done.Load() == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	w.Wait()
}
