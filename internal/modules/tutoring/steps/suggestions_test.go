package steps

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm/llmtest"
)

func suggestionsJSON(n int) string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(`{"topic":"Topic %d","description":"d","relevanceScore":%d,"difficulty":"Intermediate",`+
			`"prerequisites":["algebra"],"estimatedHours":%d,"practiceActivities":["worksheet"]}`, i, i*3, 2-i))
	}
	return `{"suggestions":[` + strings.Join(items, ",") + `]}`
}

func TestParseSuggestions(t *testing.T) {
	got, err := ParseSuggestions([]byte(suggestionsJSON(9)))
	require.NoError(t, err)
	require.Len(t, got, MaxSuggestions)
	assert.Equal(t, 0, got[0].RelevanceScore)
	assert.Equal(t, 10, got[4].RelevanceScore, "relevance is clamped to 10")
	assert.Equal(t, "intermediate", got[0].Difficulty)
	assert.Equal(t, 2.0, got[0].EstimatedHours)
	assert.Equal(t, 0.0, got[3].EstimatedHours, "negative hours clamp to zero")

	got, err = ParseSuggestions([]byte(`{"suggestions":[]}`))
	require.NoError(t, err, "an empty array is accepted")
	assert.Empty(t, got)

	_, err = ParseSuggestions([]byte(`not json`))
	assert.True(t, IsContractViolation(err))

	_, err = ParseSuggestions([]byte(`{"items":[]}`))
	assert.True(t, IsContractViolation(err))
}

func TestGenerateSuggestionsByKind(t *testing.T) {
	fake := llmtest.New("p").
		On(prompts.SchemaStudySuggestions, llmtest.Reply{JSON: suggestionsJSON(6)}).
		On(prompts.SchemaRelatedSuggestions, llmtest.Reply{JSON: `{"suggestions":[]}`})
	deps := GenerateSuggestionsDeps{LLM: fake, Log: testutil.Logger(t)}
	goal := prompts.GoalLine{Subject: "Algebra", Description: "pass the final"}

	out, err := GenerateSuggestions(context.Background(), deps, GenerateSuggestionsInput{
		Kind:   goals.SuggestionKindStudyTopic,
		Goal:   goal,
		Others: []prompts.GoalLine{{Subject: "Geometry"}},
	})
	require.NoError(t, err)
	assert.Len(t, out.Suggestions, 6)
	calls := fake.Calls(prompts.SchemaStudySuggestions)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "New goal: Algebra - pass the final")
	assert.Contains(t, calls[0].User, "- Geometry")

	out, err = GenerateSuggestions(context.Background(), deps, GenerateSuggestionsInput{Kind: goals.SuggestionKindRelatedSubject, Goal: goal})
	require.NoError(t, err)
	assert.Empty(t, out.Suggestions)

	_, err = GenerateSuggestions(context.Background(), deps, GenerateSuggestionsInput{Kind: "other"})
	assert.Error(t, err)
}

func TestPersistSuggestionsIsIdempotentPerRun(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	drafts, err := ParseSuggestions([]byte(suggestionsJSON(5)))
	require.NoError(t, err)

	in := PersistSuggestionsInput{
		RunID:     uuid.New(),
		StudentID: uuid.New(),
		GoalID:    uuid.New(),
		Kind:      goals.SuggestionKindStudyTopic,
		Drafts:    drafts,
	}
	deps := PersistSuggestionsDeps{Suggestions: set.Suggestions}
	first, err := PersistSuggestions(ctx, deps, in)
	require.NoError(t, err)
	assert.EqualValues(t, 5, first.Inserted)

	replay, err := PersistSuggestions(ctx, deps, in)
	require.NoError(t, err)
	assert.EqualValues(t, 0, replay.Inserted)
	assert.Equal(t, first.SuggestionIDs, replay.SuggestionIDs)

	rows, err := set.Suggestions.ListByGoal(dbctx.Context{Ctx: ctx}, in.GoalID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, r := range rows {
		assert.Equal(t, goals.SuggestionPending, r.Status)
		assert.Equal(t, goals.SuggestionKindStudyTopic, r.Kind)
		assert.JSONEq(t, `["worksheet"]`, string(r.PracticeActivities))
		assert.JSONEq(t, `["algebra"]`, string(r.Prerequisites))
	}

	empty, err := PersistSuggestions(ctx, deps, PersistSuggestionsInput{RunID: uuid.New(), StudentID: in.StudentID, GoalID: in.GoalID})
	require.NoError(t, err)
	assert.Empty(t, empty.SuggestionIDs)
}
