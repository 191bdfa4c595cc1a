package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

type keyedEnqueuer struct {
	runs map[string]*types.WorkflowRun
	evs  []events.Event
}

func (k *keyedEnqueuer) Enqueue(_ context.Context, ev events.Event) (*types.WorkflowRun, bool, error) {
	k.evs = append(k.evs, ev)
	if run, ok := k.runs[ev.DedupeKey]; ok {
		return run, false, nil
	}
	run := &types.WorkflowRun{ID: uuid.New(), DedupeKey: ev.DedupeKey}
	k.runs[ev.DedupeKey] = run
	return run, true, nil
}

func TestEnqueueFollowOnIsIdempotentPerStep(t *testing.T) {
	enq := &keyedEnqueuer{runs: map[string]*types.WorkflowRun{}}
	run := &types.WorkflowRun{ID: uuid.New(), WorkflowType: "TranscriptUploaded"}
	jc := NewContext(context.Background(), nil, run, nil, nil, enq, testutil.Logger(t))

	data := events.PracticeGenerateData{PracticeID: uuid.New(), StudentID: uuid.New()}
	first, err := jc.Enqueue("enqueue-practice", events.PracticeGenerate, data)
	require.NoError(t, err)
	again, err := jc.Enqueue("enqueue-practice", events.PracticeGenerate, data)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, enq.runs, 1)
	require.Len(t, enq.evs, 2)
	assert.Equal(t, run.ID, *enq.evs[0].ParentRunID)
	assert.Equal(t, "enqueue-practice", enq.evs[0].ParentStep)
}

func TestLifecycleGuards(t *testing.T) {
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	sessionID := uuid.New()
	run, _, err := set.Runs.CreateOrGet(dbc, &types.WorkflowRun{
		WorkflowType: "TranscriptUploaded",
		DedupeKey:    "k",
		Status:       jobs.RunRunning,
		Payload:      datatypes.JSON([]byte(`{"sessionId":"` + sessionID.String() + `"}`)),
	})
	require.NoError(t, err)

	jc := NewContext(context.Background(), db, run, set.Runs, set.Steps, nil, testutil.Logger(t))
	got, ok := jc.PayloadUUID("sessionId")
	assert.True(t, ok)
	assert.Equal(t, sessionID, got)

	jc.Progress("extract-insights", 10, "Running extract-insights")
	jc.Succeed("done", map[string]any{"ok": true})
	jc.Fail("late", assert.AnError)

	row, err := set.Runs.GetByID(dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.RunSucceeded, row.Status, "a succeeded run is never failed afterwards")
	assert.Equal(t, 100, row.Progress)

	jc.Yield("retry", 0)
	row, err = set.Runs.GetByID(dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.RunSucceeded, row.Status, "terminal runs are not requeued")
}

type namedHandler string

func (h namedHandler) Type() string           { return string(h) }
func (h namedHandler) Run(ctx *Context) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(namedHandler("GoalCreated")))
	require.NoError(t, r.Register(namedHandler("EngagementSweep")))
	assert.Error(t, r.Register(namedHandler("GoalCreated")))
	assert.Error(t, r.Register(namedHandler("")))
	_, ok := r.Get("GoalCreated")
	assert.True(t, ok)
	assert.Equal(t, []string{"EngagementSweep", "GoalCreated"}, r.Types())
}

func TestPayloadUUIDRejectsBadValues(t *testing.T) {
	run := &types.WorkflowRun{ID: uuid.New(), Payload: datatypes.JSON(`{"a":"not-a-uuid","b":null,"c":"00000000-0000-0000-0000-000000000000"}`)}
	jc := NewContext(context.Background(), nil, run, nil, nil, nil, nil)
	for _, key := range []string{"a", "b", "c", "missing"} {
		_, ok := jc.PayloadUUID(key)
		assert.False(t, ok, key)
	}
	var empty *Context
	assert.Error(t, empty.DecodePayload(&struct{}{}))
}

func TestInMemoryTransitionsWithoutRepo(t *testing.T) {
	run := &types.WorkflowRun{ID: uuid.New(), WorkflowType: "GoalCreated", Status: jobs.RunRunning}
	jc := NewContext(context.Background(), nil, run, nil, nil, nil, nil)

	jc.Yield("retry", time.Minute)
	assert.Equal(t, jobs.RunQueued, run.Status)
	require.NotNil(t, run.NextRunAt)

	jc.Fail("suggest", assert.AnError)
	assert.Equal(t, jobs.RunFailed, run.Status)
	assert.Equal(t, assert.AnError.Error(), run.Error)
	assert.Nil(t, run.NextRunAt)
}
