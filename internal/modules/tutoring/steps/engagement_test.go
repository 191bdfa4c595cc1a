package steps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/notify"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm/llmtest"
)

func seedStudent(t *testing.T, set repos.Set, name string, sessionOffsets ...time.Duration) (*types.Student, time.Time) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	s := &types.Student{Name: name}
	require.NoError(t, set.Students.Create(dbc, s))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, off := range sessionOffsets {
		require.NoError(t, set.Sessions.Create(dbc, &types.Session{StudentID: s.ID, StartedAt: base.Add(off)}))
	}
	return s, base
}

func TestScanEngagementWindow(t *testing.T) {
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	day := 24 * time.Hour

	lagging, base := seedStudent(t, set, "Ada Lovelace", 0, 2*day)
	_, _ = seedStudent(t, set, "Busy", 0, day, 2*day)
	lateThird, _ := seedStudent(t, set, "Late", 0, day, 8*day)
	_, _ = seedStudent(t, set, "No sessions")

	deps := ScanEngagementDeps{Students: set.Students, Sessions: set.Sessions}

	out, err := ScanEngagement(context.Background(), deps, ScanEngagementInput{Now: base.Add(3 * day), Grace: day})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Scanned)
	ids := map[uuid.UUID]EngagementCandidate{}
	for _, c := range out.Candidates {
		ids[c.StudentID] = c
	}
	require.Len(t, ids, 2)
	assert.Equal(t, 2, ids[lagging.ID].Sessions)
	assert.False(t, ids[lagging.ID].Elapsed)
	assert.Equal(t, 2, ids[lateThird.ID].Sessions, "sessions after the window do not count")

	out, err = ScanEngagement(context.Background(), deps, ScanEngagementInput{Now: base.Add(7*day + time.Hour), Grace: day})
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2, "a just-elapsed window still qualifies")
	assert.True(t, out.Candidates[0].Elapsed)

	out, err = ScanEngagement(context.Background(), deps, ScanEngagementInput{Now: base.Add(8*day + time.Hour), Grace: day})
	require.NoError(t, err)
	assert.Empty(t, out.Candidates, "windows that closed before the previous sweep are skipped")
}

func TestGenerateAndPersistNudges(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	first := time.Now().UTC().Add(-8 * 24 * time.Hour)
	candidates := []EngagementCandidate{
		{StudentID: uuid.New(), Name: "Ada Lovelace", FirstSessionAt: first, WindowEnd: first.Add(EngagementWindow), Sessions: 1, Elapsed: true},
		{StudentID: uuid.New(), Name: "Grace", FirstSessionAt: first, WindowEnd: first.Add(EngagementWindow), Sessions: 2},
	}
	fake := llmtest.New("p").On(prompts.SchemaEngagementNudge, llmtest.Reply{JSON: `{"title":"We miss you","message":"Book a session.","actionText":"Book now"}`})

	gen, err := GenerateNudges(ctx, GenerateNudgesDeps{LLM: fake}, GenerateNudgesInput{Candidates: candidates})
	require.NoError(t, err)
	require.Len(t, gen.Nudges, 2)
	assert.Equal(t, notify.UrgencyHigh, gen.Nudges[0].Urgency)
	assert.Equal(t, notify.UrgencyMedium, gen.Nudges[1].Urgency)
	assert.Len(t, fake.Calls(prompts.SchemaEngagementNudge), 2)

	runID := uuid.New()
	deps := PersistNudgesDeps{Notifications: set.Notifications}
	nudges := append(gen.Nudges, gen.Nudges[0])
	out, err := PersistNudges(ctx, deps, PersistNudgesInput{RunID: runID, Nudges: nudges})
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.Inserted, "one nudge per student per run")

	out, err = PersistNudges(ctx, deps, PersistNudgesInput{RunID: runID, Nudges: gen.Nudges})
	require.NoError(t, err)
	assert.EqualValues(t, 0, out.Inserted, "replaying the run adds nothing")

	rows, err := set.Notifications.ListByStudent(dbctx.Context{Ctx: ctx}, candidates[0].StudentID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, notify.TypeEngagementNudge, rows[0].Type)
	assert.Equal(t, "We miss you", rows[0].Title)

	_, err = PersistNudges(ctx, deps, PersistNudgesInput{RunID: uuid.New(), Nudges: gen.Nudges[:1]})
	require.NoError(t, err)
	rows, err = set.Notifications.ListByStudent(dbctx.Context{Ctx: ctx}, candidates[0].StudentID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "the next sweep may nudge again")
}

func TestGenerateNudgesRejectsEmptyMessage(t *testing.T) {
	fake := llmtest.New("p").On(prompts.SchemaEngagementNudge, llmtest.Reply{JSON: `{"title":"","message":"","actionText":""}`})
	_, err := GenerateNudges(context.Background(), GenerateNudgesDeps{LLM: fake}, GenerateNudgesInput{
		Candidates: []EngagementCandidate{{StudentID: uuid.New(), Name: "x"}},
	})
	assert.True(t, IsContractViolation(err))

	out, err := GenerateNudges(context.Background(), GenerateNudgesDeps{}, GenerateNudgesInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Nudges)
}

func TestGenerateNudgesSkipsOnlyTheBadCandidate(t *testing.T) {
	ok := llmtest.Reply{JSON: `{"title":"Hi","message":"Book a session","actionText":"Book"}`}
	bad := llmtest.Reply{JSON: `{"title":"","message":""}`}
	candidates := []EngagementCandidate{{StudentID: uuid.New(), Name: "a"}, {StudentID: uuid.New(), Name: "b"}}

	fake := llmtest.New("p").On(prompts.SchemaEngagementNudge, ok, bad)
	out, err := GenerateNudges(context.Background(), GenerateNudgesDeps{LLM: fake}, GenerateNudgesInput{Candidates: candidates})
	require.NoError(t, err)
	require.Len(t, out.Nudges, 1)
	require.Len(t, out.Failed, 1)
	assert.NotEqual(t, out.Nudges[0].StudentID, out.Failed[0])

	outage := llmtest.New("p").On(prompts.SchemaEngagementNudge, ok, llmtest.Reply{Err: &llmtest.StatusError{Code: 503}})
	_, err = GenerateNudges(context.Background(), GenerateNudgesDeps{LLM: outage}, GenerateNudgesInput{Candidates: candidates})
	require.Error(t, err, "a retryable transport error fails the batch")
	assert.False(t, IsContractViolation(err))
}
