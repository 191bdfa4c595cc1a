package goal_created

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/pipelinetest"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm/llmtest"
)

func suggestionsJSON(n int) string {
	items := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, fmt.Sprintf(`{"topic":"Topic %d","description":"d","relevanceScore":%d,"difficulty":"Intermediate","prerequisites":["basics"],"estimatedHours":2.5,"practiceActivities":["drill"]}`, i, 10-i))
	}
	return `{"suggestions":[` + strings.Join(items, ",") + `]}`
}

type fixture struct {
	env     *pipelinetest.Env
	ai      *llmtest.Fake
	student *types.Student
	goal    *types.Goal
}

func setup(t *testing.T, replies ...llmtest.Reply) *fixture {
	t.Helper()
	env := pipelinetest.New(t)
	ai := llmtest.New("primary").On(prompts.SchemaStudySuggestions, replies...)
	env.Register(t, New(env.Log, env.Set, ai, env.Engine, env.Defs))

	dbc := dbctx.Context{Ctx: context.Background()}
	student := &types.Student{Name: "Ada Lovelace", GradeLevel: "10"}
	require.NoError(t, env.Set.Students.Create(dbc, student))
	goal := &types.Goal{StudentID: student.ID, Subject: "Chemistry", Description: "Pass the unit test", Status: goals.GoalActive}
	require.NoError(t, env.Set.Goals.Create(dbc, goal))
	require.NoError(t, env.Set.Goals.Create(dbc, &types.Goal{StudentID: student.ID, Subject: "Algebra", Status: goals.GoalActive}))
	require.NoError(t, env.Set.Goals.Create(dbc, &types.Goal{StudentID: student.ID, Subject: "Latin", Status: goals.GoalCompleted}))
	return &fixture{env: env, ai: ai, student: student, goal: goal}
}

func (f *fixture) emit(t *testing.T) *types.WorkflowRun {
	t.Helper()
	run, _ := f.env.Emit(t, events.GoalCreated, events.GoalCreatedData{GoalID: f.goal.ID, StudentID: f.student.ID, Subject: f.goal.Subject})
	f.env.Drain(t)
	return f.env.Run(t, run.ID)
}

func (f *fixture) suggestions(t *testing.T) []*types.Suggestion {
	t.Helper()
	rows, err := f.env.Set.Suggestions.ListByGoal(dbctx.Context{Ctx: context.Background()}, f.goal.ID)
	require.NoError(t, err)
	return rows
}

func TestGoalCreatedPersistsStudySuggestions(t *testing.T) {
	f := setup(t, llmtest.Reply{JSON: suggestionsJSON(6)})
	run := f.emit(t)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)

	rows := f.suggestions(t)
	require.Len(t, rows, 6)
	for _, r := range rows {
		assert.Equal(t, goals.SuggestionKindStudyTopic, r.Kind)
		assert.Equal(t, f.student.ID, r.StudentID)
		assert.Equal(t, goals.SuggestionPending, r.Status)
	}

	calls := f.ai.Calls(prompts.SchemaStudySuggestions)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Chemistry - Pass the unit test")
	assert.Contains(t, calls[0].User, "Algebra", "other active goals are context")
	assert.NotContains(t, calls[0].User, "Latin", "completed goals are not siblings")
}

func TestGoalCreatedCapsSuggestions(t *testing.T) {
	f := setup(t, llmtest.Reply{JSON: suggestionsJSON(9)})
	run := f.emit(t)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)
	assert.Len(t, f.suggestions(t), 7)
}

func TestGoalCreatedAcceptsEmptySuggestions(t *testing.T) {
	f := setup(t, llmtest.Reply{JSON: `{"suggestions":[]}`})
	run := f.emit(t)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)
	assert.Empty(t, f.suggestions(t))
}

func TestGoalCreatedFailsOnMalformedOutput(t *testing.T) {
	f := setup(t, llmtest.Reply{Text: "not json at all"})
	run := f.emit(t)
	assert.Equal(t, jobs.RunFailed, run.Status)
	assert.Equal(t, stepGenerate, run.Stage)
	assert.Empty(t, f.suggestions(t))
}
