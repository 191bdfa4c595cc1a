package goal_completed

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/andychuong/ai-study-companion-sub000/internal/domain/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/events"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/orchestrator"
	jobrt "github.com/andychuong/ai-study-companion-sub000/internal/jobs/runtime"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/steps"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
)

type goalOutput struct {
	GoalID      uuid.UUID `json:"goalId"`
	StudentID   uuid.UUID `json:"studentId"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	GradeLevel  string    `json:"gradeLevel,omitempty"`
}

type completedOutput struct {
	Goals []prompts.GoalLine `json:"goals"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	var data events.GoalCompletedData
	if err := jc.DecodePayload(&data); err != nil || data.GoalID == uuid.Nil || data.StudentID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing goalId or studentId"))
		return nil
	}

	pl, err := p.defs.Bind(p.Type(), map[string]orchestrator.StepFunc{
		stepLoadGoal: func(jc *jobrt.Context, _ *orchestrator.State) (any, error) {
			return p.loadGoal(jc, data)
		},
		stepLoadStudent:   p.loadStudent,
		stepLoadCompleted: p.loadCompleted,
		stepGenerate:      p.generate,
		stepPersist:       p.persist,
	})
	if err != nil {
		jc.Fail("validate", orchestrator.Permanent(err))
		return nil
	}
	pl.Result = func(st *orchestrator.State) any {
		var out steps.PersistSuggestionsOutput
		_ = st.Decode(stepPersist, &out)
		return map[string]any{
			"goal_id":        data.GoalID.String(),
			"suggestion_ids": out.SuggestionIDs,
		}
	}
	return p.engine.Run(jc, pl)
}

func (p *Pipeline) loadGoal(jc *jobrt.Context, data events.GoalCompletedData) (any, error) {
	g, err := p.goals.GetByID(dbctx.Context{Ctx: jc.Ctx}, data.GoalID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, orchestrator.Permanent(fmt.Errorf("goal %s not found", data.GoalID))
	}
	if g.Status != goals.GoalCompleted {
		jc.Log.Warn("Goal not marked completed; suggesting anyway", "goal_id", g.ID.String(), "status", g.Status)
	}
	subject := g.Subject
	if strings.TrimSpace(subject) == "" {
		subject = data.Subject
	}
	return goalOutput{GoalID: g.ID, StudentID: g.StudentID, Subject: subject, Description: g.Description}, nil
}

// loadStudent carries the grade level forward on the goal output.
func (p *Pipeline) loadStudent(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var g goalOutput
	if err := st.Decode(stepLoadGoal, &g); err != nil {
		return nil, err
	}
	s, err := p.students.GetByID(dbctx.Context{Ctx: jc.Ctx}, g.StudentID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, orchestrator.Permanent(fmt.Errorf("student %s not found", g.StudentID))
	}
	g.GradeLevel = s.GradeLevel
	return g, nil
}

func (p *Pipeline) loadCompleted(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var g goalOutput
	if err := st.Decode(stepLoadStudent, &g); err != nil {
		return nil, err
	}
	rows, err := p.goals.ListByStudent(dbctx.Context{Ctx: jc.Ctx}, g.StudentID, goals.GoalCompleted, g.GoalID)
	if err != nil {
		return nil, err
	}
	out := completedOutput{Goals: make([]prompts.GoalLine, 0, len(rows))}
	for _, r := range rows {
		out.Goals = append(out.Goals, prompts.GoalLine{Subject: r.Subject, Description: r.Description})
	}
	return out, nil
}

func (p *Pipeline) generate(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var (
		g    goalOutput
		done completedOutput
	)
	if err := st.Decode(stepLoadStudent, &g); err != nil {
		return nil, err
	}
	if err := st.Decode(stepLoadCompleted, &done); err != nil {
		return nil, err
	}
	return steps.GenerateSuggestions(jc.Ctx, steps.GenerateSuggestionsDeps{LLM: p.ai, Log: jc.Log}, steps.GenerateSuggestionsInput{
		Kind:       goals.SuggestionKindRelatedSubject,
		GradeLevel: g.GradeLevel,
		Goal:       prompts.GoalLine{Subject: g.Subject, Description: g.Description},
		Others:     done.Goals,
	})
}

func (p *Pipeline) persist(jc *jobrt.Context, st *orchestrator.State) (any, error) {
	var (
		g   goalOutput
		gen steps.GenerateSuggestionsOutput
	)
	if err := st.Decode(stepLoadGoal, &g); err != nil {
		return nil, err
	}
	if err := st.Decode(stepGenerate, &gen); err != nil {
		return nil, err
	}
	return steps.PersistSuggestions(jc.Ctx, steps.PersistSuggestionsDeps{Suggestions: p.suggestions, Log: jc.Log}, steps.PersistSuggestionsInput{
		RunID:     jc.Run.ID,
		StudentID: g.StudentID,
		GoalID:    g.GoalID,
		Kind:      goals.SuggestionKindRelatedSubject,
		Drafts:    gen.Suggestions,
	})
}
