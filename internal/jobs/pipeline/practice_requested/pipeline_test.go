package practice_requested

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/tutoring"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/pipeline/pipelinetest"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/steps"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm/llmtest"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/vectorstore/vectortest"
)

const fiveQuestions = `{"questions":[
  {"id":"q1","prompt":"a?","type":"short-answer","difficulty":3,"concept":"fractions","correctAnswer":"a","explanation":"e"},
  {"id":"q2","prompt":"b?","type":"short-answer","difficulty":3,"concept":"fractions","correctAnswer":"b","explanation":"e"},
  {"id":"q3","prompt":"c?","type":"short-answer","difficulty":3,"concept":"fractions","correctAnswer":"c","explanation":"e"},
  {"id":"q4","prompt":"d?","type":"short-answer","difficulty":3,"concept":"fractions","correctAnswer":"d","explanation":"e"},
  {"id":"q5","prompt":"e?","type":"short-answer","difficulty":3,"concept":"fractions","correctAnswer":"e","explanation":"e"}
]}`

type fixture struct {
	env      *pipelinetest.Env
	ai       *llmtest.Fake
	student  *types.Student
	session  *types.Session
	practice *types.Practice
}

func setup(t *testing.T, replies ...llmtest.Reply) *fixture {
	t.Helper()
	return setupWithVectors(t, vectorstore.Unconfigured{}, replies...)
}

func setupWithVectors(t *testing.T, vec vectorstore.Store, replies ...llmtest.Reply) *fixture {
	t.Helper()
	env := pipelinetest.New(t)
	ai := llmtest.New("primary").On(prompts.SchemaPracticeQuestions, replies...)
	env.Register(t, New(env.Log, env.Set, ai, vec, env.Engine, env.Defs))

	dbc := dbctx.Context{Ctx: context.Background()}
	student := &types.Student{Name: "Grace Hopper", GradeLevel: "9"}
	require.NoError(t, env.Set.Students.Create(dbc, student))

	analysis, err := json.Marshal(types.SessionAnalysis{Concepts: []types.ObservedConcept{{Name: "Fractions", MasteryLevel: 20}}})
	require.NoError(t, err)
	session := &types.Session{StudentID: student.ID, Subject: "math", AnalysisResult: datatypes.JSON(analysis)}
	require.NoError(t, env.Set.Sessions.Create(dbc, session))

	c, err := env.Set.Concepts.GetOrCreate(dbc, "math", "fractions", 4)
	require.NoError(t, err)
	require.NoError(t, env.Set.Mastery.MergeMax(dbc, student.ID, c.ID, 80, time.Now()))

	practice := &types.Practice{StudentID: student.ID, SessionID: &session.ID, Status: tutoring.PracticeAssigned}
	require.NoError(t, env.Set.Practices.Create(dbc, practice))
	return &fixture{env: env, ai: ai, student: student, session: session, practice: practice}
}

func (f *fixture) emit(t *testing.T) *types.WorkflowRun {
	t.Helper()
	run, _ := f.env.Emit(t, events.PracticeGenerate, events.PracticeGenerateData{
		PracticeID: f.practice.ID,
		StudentID:  f.student.ID,
	})
	f.env.Drain(t)
	return f.env.Run(t, run.ID)
}

func (f *fixture) reload(t *testing.T) *types.Practice {
	t.Helper()
	p, err := f.env.Set.Practices.GetByID(dbctx.Context{Ctx: context.Background()}, f.practice.ID)
	require.NoError(t, err)
	return p
}

func TestPracticeCalibratesFromStoredMastery(t *testing.T) {
	f := setup(t, llmtest.Reply{JSON: fiveQuestions})
	run := f.emit(t)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)

	p := f.reload(t)
	assert.Equal(t, 9, p.Difficulty, "mastery 80 calibrates to 9")
	require.NotNil(t, p.DueAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *p.DueAt, time.Minute)

	calls := f.ai.Calls(prompts.SchemaPracticeQuestions)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "math")
	assert.Contains(t, calls[0].User, "fractions")
}

func TestPracticeRetriesContractViolationThenFails(t *testing.T) {
	four := `{"questions":[{"prompt":"a"},{"prompt":"b"},{"prompt":"c"},{"prompt":"d"}]}`
	f := setup(t, llmtest.Reply{JSON: four})
	run := f.emit(t)

	assert.Equal(t, jobs.RunFailed, run.Status)
	assert.Equal(t, stepGenerate, run.Stage)
	assert.Len(t, f.ai.Calls(prompts.SchemaPracticeQuestions), 3)

	p := f.reload(t)
	assert.Equal(t, tutoring.PracticeFailed, p.Status)
	assert.NotEmpty(t, p.Error)
}

func TestPracticeRecoversFromTransientModelError(t *testing.T) {
	f := setup(t,
		llmtest.Reply{Err: &llmtest.StatusError{Code: 503}},
		llmtest.Reply{JSON: fiveQuestions},
	)
	run := f.emit(t)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)
	assert.Equal(t, 2, f.env.Step(t, run, stepGenerate).Attempts)
	assert.Equal(t, 1, f.env.Step(t, run, stepLoadMastery).Attempts)
}

func TestPracticeAlreadyStartedIsLeftAlone(t *testing.T) {
	f := setup(t, llmtest.Reply{JSON: fiveQuestions})
	_, err := f.env.Set.Practices.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.Background()}, f.practice.ID, nil,
		map[string]interface{}{"status": tutoring.PracticeInProgress})
	require.NoError(t, err)

	run := f.emit(t)
	require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)
	assert.Empty(t, f.ai.Calls(prompts.SchemaPracticeQuestions))
	assert.Equal(t, tutoring.PracticeInProgress, f.reload(t).Status)
}

func TestPracticeMissingStudentFailsPermanently(t *testing.T) {
	f := setup(t, llmtest.Reply{Err: errors.New("unused")})
	run, _ := f.env.Emit(t, events.PracticeGenerate, events.PracticeGenerateData{PracticeID: f.practice.ID, StudentID: uuid.New()})
	f.env.Drain(t)

	run = f.env.Run(t, run.ID)
	assert.Equal(t, jobs.RunFailed, run.Status)
	assert.Equal(t, stepLoadStudent, run.Stage)
	assert.Equal(t, 1, f.env.Step(t, run, stepLoadStudent).Attempts)
	assert.Equal(t, tutoring.PracticeFailed, f.reload(t).Status)
}

func TestQuestionsBuildOnEarlierSessions(t *testing.T) {
	const excerpt = "Last week we converted mixed numbers to improper fractions."

	t.Run("unconfigured index", func(t *testing.T) {
		f := setupWithVectors(t, vectorstore.Unconfigured{}, llmtest.Reply{JSON: fiveQuestions})
		run := f.emit(t)
		require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)
		calls := f.ai.Calls(prompts.SchemaPracticeQuestions)
		require.Len(t, calls, 1)
		assert.NotContains(t, calls[0].User, "Earlier session excerpts")
	})

	t.Run("memory index", func(t *testing.T) {
		mem := vectortest.NewMemory()
		f := setupWithVectors(t, mem, llmtest.Reply{JSON: fiveQuestions})
		chunk := func(session, student uuid.UUID, text string) vectorstore.Vector {
			emb, err := f.ai.Embed(context.Background(), []string{text})
			require.NoError(t, err)
			return vectorstore.Vector{
				ID:     steps.VectorID(session, 0),
				Values: emb[0],
				Metadata: map[string]any{
					"student_id": student.String(),
					"session_id": session.String(),
					"text":       text,
				},
			}
		}
		require.NoError(t, mem.Upsert(context.Background(), steps.SessionNamespace, []vectorstore.Vector{
			chunk(uuid.New(), f.student.ID, excerpt),
			chunk(f.session.ID, f.student.ID, "This session's own transcript."),
			chunk(uuid.New(), uuid.New(), "Another student's session."),
		}))

		run := f.emit(t)
		require.Equal(t, jobs.RunSucceeded, run.Status, run.Error)
		calls := f.ai.Calls(prompts.SchemaPracticeQuestions)
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].User, excerpt)
		assert.NotContains(t, calls[0].User, "This session's own transcript.")
		assert.NotContains(t, calls[0].User, "Another student's session.")
	})
}
