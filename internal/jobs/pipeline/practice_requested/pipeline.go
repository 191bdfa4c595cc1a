package practice_requested

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/tutoring"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	jobrt "github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/steps"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

// practiceContext is the output of load-session.
type practiceContext struct {
	PracticeID uuid.UUID              `json:"practiceId"`
	StudentID  uuid.UUID              `json:"studentId"`
	SessionID  *uuid.UUID             `json:"sessionId,omitempty"`
	Subject    string                 `json:"subject"`
	Analysis   *types.SessionAnalysis `json:"analysis,omitempty"`
	// Skip is set when the student already started the practice.
	Skip bool `json:"skip"`
}

type studentContext struct {
	Name       string `json:"name"`
	GradeLevel string `json:"gradeLevel"`
}

type masteryOutput struct {
	Concepts []steps.PracticeConcept `json:"concepts"`
}

type difficultyOutput struct {
	Difficulty int `json:"difficulty"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	var data events.PracticeGenerateData
	if err := jc.DecodePayload(&data); err != nil || data.PracticeID == uuid.Nil || data.StudentID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing practiceId or studentId"))
		return nil
	}

	pl, err := p.defs.Bind(p.Type(), map[string]orchestrator.StepFunc{
		stepLoadSession: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return p.loadSession(jc, data)
		},
		stepLoadStudent: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return p.loadStudent(jc, data)
		},
		stepLoadMastery: p.loadMastery,
		stepCalibrate:   p.calibrate,
		stepGenerate:    p.generate,
		stepPersist:     p.persist,
	})
	if err != nil {
		jc.Fail("validate", orchestrator.Permanent(err))
		return nil
	}
	pl.OnFailure = func(jc *jobrt.Context, step string, err error) {
		ok, uerr := p.practices.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: jc.Ctx}, data.PracticeID,
			[]string{tutoring.PracticeInProgress, tutoring.PracticeCompleted},
			map[string]interface{}{"status": tutoring.PracticeFailed, "error": err.Error()})
		if uerr != nil {
			jc.Log.Warn("Practice failure not recorded", "practice_id", data.PracticeID.String(), "error", uerr)
		} else if !ok {
			jc.Log.Info("Practice already started; failure not recorded on it", "practice_id", data.PracticeID.String())
		}
	}
	pl.Result = func(st *orchestrator.State) any {
		var out steps.PersistQuestionsOutput
		var diff difficultyOutput
		_ = st.Decode(stepPersist, &out)
		_ = st.Decode(stepCalibrate, &diff)
		return map[string]any{
			"practice_id": data.PracticeID.String(),
			"difficulty":  diff.Difficulty,
			"updated":     out.Updated,
			"due_at":      out.DueAt,
		}
	}
	return p.engine.Run(jc, pl)
}

func (p *Pipeline) loadSession(jc *jobrt.Context, data events.PracticeGenerateData) (any, error) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	practice, err := p.practices.GetByID(dbc, data.PracticeID)
	if err != nil {
		return nil, err
	}
	if practice == nil {
		return nil, orchestrator.Permanent(fmt.Errorf("practice %s not found", data.PracticeID))
	}
	out := practiceContext{
		PracticeID: practice.ID,
		StudentID:  practice.StudentID,
		Subject:    defaultSubject,
		Skip:       practice.Status == tutoring.PracticeInProgress || practice.Status == tutoring.PracticeCompleted,
	}
	sessionID := practice.SessionID
	if sessionID == nil {
		sessionID = data.SessionID
	}
	if sessionID == nil || *sessionID == uuid.Nil {
		return out, nil
	}
	s, err := p.sessions.GetByID(dbc, *sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		jc.Log.Warn("Practice session not found; generating without it", "session_id", sessionID.String())
		return out, nil
	}
	out.SessionID = &s.ID
	if subject := strings.TrimSpace(s.Subject); subject != "" {
		out.Subject = subject
	}
	if len(s.AnalysisResult) > 0 && string(s.AnalysisResult) != "null" {
		var a types.SessionAnalysis
		if err := json.Unmarshal(s.AnalysisResult, &a); err == nil {
			out.Analysis = &a
		}
	}
	return out, nil
}

func (p *Pipeline) loadStudent(jc *jobrt.Context, data events.PracticeGenerateData) (any, error) {
	s, err := p.students.GetByID(dbctx.Context{Ctx: jc.Ctx}, data.StudentID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, orchestrator.Permanent(fmt.Errorf("student %s not found", data.StudentID))
	}
	return studentContext{Name: s.Name, GradeLevel: s.GradeLevel}, nil
}

func (p *Pipeline) loadMastery(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var pc practiceContext
	if err := st.Decode(stepLoadSession, &pc); err != nil {
		return nil, err
	}
	var data events.PracticeGenerateData
	_ = jc.DecodePayload(&data)
	concepts, err := steps.LoadPracticeConcepts(jc.Ctx, steps.LoadPracticeConceptsDeps{
		Concepts: p.concepts,
		Mastery:  p.mastery,
	}, steps.LoadPracticeConceptsInput{
		StudentID:  pc.StudentID,
		Subject:    pc.Subject,
		Analysis:   pc.Analysis,
		ConceptIDs: data.ConceptIDs,
	})
	if err != nil {
		return nil, err
	}
	return masteryOutput{Concepts: concepts}, nil
}

func (p *Pipeline) calibrate(_ *jobrt.Context, st *orchestrator.State) (any, error) {
	var m masteryOutput
	if err := st.Decode(stepLoadMastery, &m); err != nil {
		return nil, err
	}
	return difficultyOutput{Difficulty: steps.CalibrateDifficulty(steps.MasteryLevels(m.Concepts))}, nil
}

func (p *Pipeline) generate(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var (
		pc   practiceContext
		stu  studentContext
		m    masteryOutput
		diff difficultyOutput
	)
	for step, out := range map[string]any{stepLoadSession: &pc, stepLoadStudent: &stu, stepLoadMastery: &m, stepCalibrate: &diff} {
		if err := st.Decode(step, out); err != nil {
			return nil, err
		}
	}
	if pc.Skip {
		return steps.GenerateQuestionsOutput{Questions: []types.Question{}}, nil
	}
	names := make([]string, 0, len(m.Concepts))
	for _, c := range m.Concepts {
		names = append(names, c.Name)
	}
	prior := steps.PriorContext(jc.Ctx, steps.PriorContextDeps{LLM: p.ai, Vec: p.vec, Log: jc.Log}, steps.PriorContextInput{
		StudentID:      pc.StudentID,
		ExcludeSession: pc.SessionID,
		Query:          strings.TrimSpace(pc.Subject + ": " + strings.Join(names, ", ")),
		TopK:           priorTopK,
	})
	return steps.GenerateQuestions(jc.Ctx, steps.GenerateQuestionsDeps{
		LLM:      p.ai,
		Concepts: p.concepts,
		Log:      jc.Log,
	}, steps.GenerateQuestionsInput{
		GradeLevel:       stu.GradeLevel,
		Subject:          pc.Subject,
		Concepts:         m.Concepts,
		TargetDifficulty: diff.Difficulty,
		Prior:            prior,
	})
}

func (p *Pipeline) persist(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var (
		pc   practiceContext
		diff difficultyOutput
		gen  steps.GenerateQuestionsOutput
	)
	for step, out := range map[string]any{stepLoadSession: &pc, stepCalibrate: &diff, stepGenerate: &gen} {
		if err := st.Decode(step, out); err != nil {
			return nil, err
		}
	}
	if pc.Skip {
		jc.Log.Info("Practice already started; keeping its questions", "practice_id", pc.PracticeID.String())
		return steps.PersistQuestionsOutput{}, nil
	}
	return steps.PersistQuestions(jc.Ctx, steps.PersistQuestionsDeps{Practices: p.practices}, steps.PersistQuestionsInput{
		PracticeID: pc.PracticeID,
		Questions:  gen.Questions,
		Difficulty: diff.Difficulty,
		Now:        time.Now().UTC(),
	})
}
