package goals

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos/testutil"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

func TestGoalListByStudentFilters(t *testing.T) {
	db := testutil.DB(t)
	repo := NewGoalRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	student := uuid.New()

	current := &types.Goal{StudentID: student, Subject: "algebra", Status: goals.GoalActive}
	done := &types.Goal{StudentID: student, Subject: "arithmetic", Status: goals.GoalCompleted}
	other := &types.Goal{StudentID: student, Subject: "geometry", Status: goals.GoalActive}
	for _, g := range []*types.Goal{current, done, other} {
		require.NoError(t, repo.Create(dbc, g))
	}

	siblings, err := repo.ListByStudent(dbc, student, "", current.ID)
	require.NoError(t, err)
	assert.Len(t, siblings, 2)

	completed, err := repo.ListByStudent(dbc, student, goals.GoalCompleted, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)
}

func TestSuggestionCreateIgnoreExisting(t *testing.T) {
	db := testutil.DB(t)
	repo := NewSuggestionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}
	goalID := uuid.New()
	id := uuid.New()

	mk := func() []*types.Suggestion {
		return []*types.Suggestion{{ID: id, StudentID: uuid.New(), GoalID: goalID, Kind: goals.SuggestionKindStudyTopic, Topic: "Slope"}}
	}
	n, err := repo.CreateIgnoreExisting(dbc, mk())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = repo.CreateIgnoreExisting(dbc, mk())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	rows, err := repo.ListByGoal(dbc, goalID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
