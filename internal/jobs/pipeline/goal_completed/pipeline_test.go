package goal_completed

import (
	"context"
	"testing"

	"github.com/google/uuid"
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

const related = `{"suggestions":[
  {"topic":"Organic Chemistry","description":"carbon compounds","relevanceScore":9,"difficulty":"advanced","prerequisites":["Chemistry"],"estimatedHours":20},
  {"topic":"Biochemistry","description":"chemistry of life","relevanceScore":8.6,"difficulty":"Advanced","prerequisites":[],"estimatedHours":25},
  {"topic":"Physics","description":"forces","relevanceScore":7,"difficulty":"beginner","estimatedHours":15},
  {"topic":"Earth Science","description":"rocks","relevanceScore":6,"difficulty":"Beginner","estimatedHours":10},
  {"topic":"  ","description":"blank topics are dropped","relevanceScore":5}
]}`

func TestGoalCompletedPersistsRelatedSubjects(t *testing.T) {
	env := pipelinetest.New(t)
	ai := llmtest.New("primary").On(prompts.SchemaRelatedSuggestions, llmtest.Reply{JSON: related})
	env.Register(t, New(env.Log, env.Set, ai, env.Engine, env.Defs))

	dbc := dbctx.Context{Ctx: context.Background()}
	student := &types.Student{Name: "Ada", GradeLevel: "11"}
	require.NoError(t, env.Set.Students.Create(dbc, student))
	goal := &types.Goal{StudentID: student.ID, Subject: "Chemistry", Status: goals.GoalCompleted}
	require.NoError(t, env.Set.Goals.Create(dbc, goal))
	require.NoError(t, env.Set.Goals.Create(dbc, &types.Goal{StudentID: student.ID, Subject: "Biology", Status: goals.GoalCompleted}))
	require.NoError(t, env.Set.Goals.Create(dbc, &types.Goal{StudentID: student.ID, Subject: "French", Status: goals.GoalActive}))

	run, created := env.Emit(t, events.GoalCompleted, events.GoalCompletedData{GoalID: goal.ID, StudentID: student.ID, Subject: "Chemistry"})
	require.True(t, created)
	env.Drain(t)
	run = env.Run(t, run.ID)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)

	rows, err := env.Set.Suggestions.ListByGoal(dbc, goal.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	byTopic := map[string]*types.Suggestion{}
	for _, r := range rows {
		assert.Equal(t, goals.SuggestionKindRelatedSubject, r.Kind)
		byTopic[r.Topic] = r
	}
	require.Contains(t, byTopic, "Biochemistry")
	assert.Equal(t, 9, byTopic["Biochemistry"].RelevanceScore)
	assert.Equal(t, "advanced", byTopic["Biochemistry"].Difficulty)
	assert.Equal(t, "beginner", byTopic["Earth Science"].Difficulty)

	calls := ai.Calls(prompts.SchemaRelatedSuggestions)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Completed goal: Chemistry")
	assert.Contains(t, calls[0].User, "Biology")
	assert.NotContains(t, calls[0].User, "French")

	// Redelivery maps to the finished run.
	again, created := env.Emit(t, events.GoalCompleted, events.GoalCompletedData{GoalID: goal.ID, StudentID: student.ID, Subject: "Chemistry"})
	assert.False(t, created)
	assert.Equal(t, run.ID, again.ID)
}

func TestGoalCompletedMissingGoalFailsPermanently(t *testing.T) {
	env := pipelinetest.New(t)
	ai := llmtest.New("primary").On(prompts.SchemaRelatedSuggestions, llmtest.Reply{JSON: related})
	env.Register(t, New(env.Log, env.Set, ai, env.Engine, env.Defs))

	run, _ := env.Emit(t, events.GoalCompleted, events.GoalCompletedData{GoalID: uuid.New(), StudentID: uuid.New(), Subject: "Chemistry"})
	env.Drain(t)
	run = env.Run(t, run.ID)
	assert.Equal(t, jobs.RunFailed, run.Status)
	assert.Equal(t, stepLoadGoal, run.Stage)
	assert.Equal(t, 1, env.Step(t, run, stepLoadGoal).Attempts)
	assert.Empty(t, ai.Calls(""))
}
