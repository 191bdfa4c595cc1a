package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

func TestWorkflowRunCreateOrGetDedupes(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWorkflowRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	key := "transcript.uploaded:" + uuid.NewString()
	first, created, err := repo.CreateOrGet(dbc, &types.WorkflowRun{WorkflowType: "TranscriptUploaded", DedupeKey: key})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.CreateOrGet(dbc, &types.WorkflowRun{WorkflowType: "TranscriptUploaded", DedupeKey: key})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, jobs.RunQueued, second.Status)
}

func TestWorkflowRunClaimNextRunnable(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWorkflowRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	stale := now.Add(-2 * time.Hour)

	notDue := &types.WorkflowRun{WorkflowType: "x", DedupeKey: "not-due", NextRunAt: &future, CreatedAt: now.Add(-3 * time.Hour)}
	staleRunning := &types.WorkflowRun{WorkflowType: "x", DedupeKey: "stale", Status: jobs.RunRunning, HeartbeatAt: &stale, CreatedAt: now.Add(-2 * time.Hour)}
	queued := &types.WorkflowRun{WorkflowType: "x", DedupeKey: "queued", CreatedAt: now.Add(-1 * time.Hour)}
	for _, run := range []*types.WorkflowRun{notDue, staleRunning, queued} {
		_, _, err := repo.CreateOrGet(dbc, run)
		require.NoError(t, err)
	}

	got, err := repo.ClaimNextRunnable(dbc, 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, staleRunning.ID, got.ID, "stale running run is reclaimed first by age")
	assert.Equal(t, jobs.RunRunning, got.Status)

	got, err = repo.ClaimNextRunnable(dbc, 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, queued.ID, got.ID)
	assert.Equal(t, 1, got.Attempts)

	got, err = repo.ClaimNextRunnable(dbc, 30*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got, "future next_run_at must not be claimed")
}

func TestWorkflowRunClaimByIDAndUpdateUnlessStatus(t *testing.T) {
	db := testutil.DB(t)
	repo := NewWorkflowRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	run, _, err := repo.CreateOrGet(dbc, &types.WorkflowRun{WorkflowType: "x", DedupeKey: "by-id"})
	require.NoError(t, err)

	got, claimed, err := repo.ClaimByID(dbc, run.ID, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, jobs.RunRunning, got.Status)

	_, claimed, err = repo.ClaimByID(dbc, run.ID, time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed, "fresh running run is not claimable twice")

	require.NoError(t, repo.UpdateFields(dbc, run.ID, map[string]interface{}{"status": jobs.RunSucceeded}))
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, run.ID, []string{jobs.RunSucceeded}, map[string]interface{}{"status": jobs.RunFailed})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkflowStepJournal(t *testing.T) {
	db := testutil.DB(t)
	steps := NewWorkflowStepRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	runID := uuid.New()

	row, err := steps.Begin(dbc, runID, "extract-insights")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Attempts)
	assert.Equal(t, jobs.StepRunning, row.Status)

	require.NoError(t, steps.ScheduleRetry(dbc, runID, "extract-insights", time.Now().Add(time.Second), "boom"))
	row, err = steps.Begin(dbc, runID, "extract-insights")
	require.NoError(t, err)
	assert.Equal(t, 2, row.Attempts)
	assert.Nil(t, row.NextRunAt)

	require.NoError(t, steps.Succeed(dbc, runID, "extract-insights", []byte(`{"topics":["fractions"]}`)))
	row, err = steps.Get(dbc, runID, "extract-insights")
	require.NoError(t, err)
	assert.Equal(t, jobs.StepSucceeded, row.Status)
	assert.JSONEq(t, `{"topics":["fractions"]}`, string(row.Output))

	all, err := steps.ListByRun(dbc, runID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
