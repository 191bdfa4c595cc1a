package jobrun

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

const runID = "7a1c6c2e-5c7f-4c35-8f0e-0c1f2d3e4f50"

func scriptedTicks(results ...TickResult) (func(context.Context, string) (TickResult, error), *int) {
	var mu sync.Mutex
	calls := 0
	return func(_ context.Context, id string) (TickResult, error) {
		mu.Lock()
		defer mu.Unlock()
		r := results[len(results)-1]
		if calls < len(results) {
			r = results[calls]
		}
		calls++
		r.RunID = id
		return r, nil
	}, &calls
}

func newEnv(t *testing.T, tick func(context.Context, string) (TickResult, error)) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	env.RegisterActivityWithOptions(tick, activity.RegisterOptions{Name: ActivityTick})
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: runID})
	return env
}

func TestWorkflowSleepsUntilRetryIsDue(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tick, calls := scriptedTicks(
		TickResult{Status: jobs.RunQueued, Stage: "retry:store-vectors", NextRunAt: &at},
		TickResult{Status: jobs.RunSucceeded, Stage: "done"},
	)
	env := newEnv(t, tick)
	env.SetStartTime(at.Add(-time.Minute))

	env.ExecuteWorkflow(WorkflowName)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 2, *calls)
	assert.False(t, env.Now().Before(at), "the second tick waits for next_run_at")
}

func TestWorkflowReportsFailedRun(t *testing.T) {
	tick, _ := scriptedTicks(TickResult{Status: jobs.RunFailed, Stage: "generate-questions"})
	env := newEnv(t, tick)

	env.ExecuteWorkflow(WorkflowName)
	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate-questions")
}

type fakeExecutor struct {
	runs  repos.WorkflowRunRepo
	calls int
}

func (f *fakeExecutor) StaleAfter() time.Duration { return time.Minute }

func (f *fakeExecutor) Execute(ctx context.Context, run *types.WorkflowRun) {
	f.calls++
	_ = f.runs.UpdateFields(dbctx.Context{Ctx: ctx}, run.ID, map[string]interface{}{"status": jobs.RunSucceeded, "stage": "done"})
}

func TestTickClaimsDueRunOnce(t *testing.T) {
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	run, _, err := set.Runs.CreateOrGet(dbc, &types.WorkflowRun{WorkflowType: "TranscriptUploaded", DedupeKey: "k1"})
	require.NoError(t, err)

	exec := &fakeExecutor{runs: set.Runs}
	acts := &Activities{Log: testutil.Logger(t), Runs: set.Runs, Executor: exec}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: ActivityTick})

	val, err := env.ExecuteActivity(ActivityTick, run.ID.String())
	require.NoError(t, err)
	var res TickResult
	require.NoError(t, val.Get(&res))
	assert.True(t, res.Claimed)
	assert.Equal(t, jobs.RunSucceeded, res.Status)

	val, err = env.ExecuteActivity(ActivityTick, run.ID.String())
	require.NoError(t, err)
	require.NoError(t, val.Get(&res))
	assert.False(t, res.Claimed, "finished runs are not claimed again")
	assert.Equal(t, 1, exec.calls)

	_, err = env.ExecuteActivity(ActivityTick, "not-a-uuid")
	assert.Error(t, err)
}
