package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	repotutoring "github.com/andychuong/ai-study-companion-sub000/internal/data/repos/tutoring"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/tutoring"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// PracticeDueIn is how long a student has to finish generated practice.
const PracticeDueIn = 7 * 24 * time.Hour

// PracticeConcept is one concept offered to the question generator.
type PracticeConcept struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Difficulty   int       `json:"difficulty"`
	MasteryLevel int       `json:"masteryLevel"`
}

type LoadPracticeConceptsDeps struct {
	Concepts repos.ConceptRepo
	Mastery  repos.MasteryRepo
}

type LoadPracticeConceptsInput struct {
	StudentID  uuid.UUID
	Subject    string
	Analysis   *types.SessionAnalysis
	ConceptIDs []uuid.UUID
}

// LoadPracticeConcepts picks the concepts practice should cover: the session's
// analyzed concepts first, then explicitly requested ids, then everything the
// student has mastery for. Mastery comes from the stored rows, not the
// session's observation.
func LoadPracticeConcepts(ctx context.Context, deps LoadPracticeConceptsDeps, in LoadPracticeConceptsInput) ([]PracticeConcept, error) {
	if deps.Concepts == nil || deps.Mastery == nil {
		return nil, fmt.Errorf("load_practice_concepts: missing deps")
	}
	dbc := dbctx.Context{Ctx: ctx}
	var concepts []*types.Concept

	if in.Analysis != nil && len(in.Analysis.Concepts) > 0 {
		names := make([]string, 0, len(in.Analysis.Concepts))
		for _, c := range in.Analysis.Concepts {
			names = append(names, c.Name)
		}
		byName, err := deps.Concepts.GetByNames(dbc, in.Subject, names)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if c := byName[repotutoring.NormalizeName(n)]; c != nil {
				concepts = append(concepts, c)
			}
		}
	}
	if len(concepts) == 0 && len(in.ConceptIDs) > 0 {
		rows, err := deps.Concepts.GetByIDs(dbc, in.ConceptIDs)
		if err != nil {
			return nil, err
		}
		concepts = rows
	}

	var mastery []*types.StudentConceptMastery
	var err error
	if len(concepts) == 0 {
		mastery, err = deps.Mastery.ListByStudent(dbc, in.StudentID)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(mastery))
		for _, m := range mastery {
			ids = append(ids, m.ConceptID)
		}
		if concepts, err = deps.Concepts.GetByIDs(dbc, ids); err != nil {
			return nil, err
		}
	} else {
		ids := make([]uuid.UUID, 0, len(concepts))
		for _, c := range concepts {
			ids = append(ids, c.ID)
		}
		if mastery, err = deps.Mastery.ListByStudentConcepts(dbc, in.StudentID, ids); err != nil {
			return nil, err
		}
	}

	levels := make(map[uuid.UUID]int, len(mastery))
	for _, m := range mastery {
		levels[m.ConceptID] = m.MasteryLevel
	}
	out := make([]PracticeConcept, 0, len(concepts))
	seen := map[uuid.UUID]bool{}
	for _, c := range concepts {
		if c == nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, PracticeConcept{ID: c.ID, Name: c.Name, Difficulty: c.Difficulty, MasteryLevel: levels[c.ID]})
	}
	return out, nil
}

// MasteryLevels lists the mastery of each concept, for difficulty calibration.
func MasteryLevels(concepts []PracticeConcept) []int {
	out := make([]int, 0, len(concepts))
	for _, c := range concepts {
		out = append(out, c.MasteryLevel)
	}
	return out
}

type GenerateQuestionsDeps struct {
	LLM      llm.Generator
	Concepts repos.ConceptRepo
	Log      *logger.Logger
}

type GenerateQuestionsInput struct {
	GradeLevel       string
	Subject          string
	Concepts         []PracticeConcept
	TargetDifficulty int
	Prior            []string
}

type GenerateQuestionsOutput struct {
	Questions []types.Question `json:"questions"`
}

type questionWire struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	Difficulty    int      `json:"difficulty"`
	Concept       string   `json:"concept"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

type questionsWire struct {
	Questions *[]questionWire `json:"questions"`
}

// GenerateQuestions asks for a fixed-size question set and links each
// question to a known concept. Unmatched concept references become nil.
func GenerateQuestions(ctx context.Context, deps GenerateQuestionsDeps, in GenerateQuestionsInput) (GenerateQuestionsOutput, error) {
	out := GenerateQuestionsOutput{}
	if deps.LLM == nil {
		return out, fmt.Errorf("generate_questions: missing deps")
	}
	target := clampInt(in.TargetDifficulty, 1, 10)
	lines := make([]prompts.ConceptLine, 0, len(in.Concepts))
	for _, c := range in.Concepts {
		lines = append(lines, prompts.ConceptLine{Name: c.Name, Difficulty: c.Difficulty, MasteryLevel: c.MasteryLevel})
	}
	p := prompts.PracticeQuestions(in.GradeLevel, in.Subject, lines, target, in.Prior)
	done := llmTimer(deps.Log, "practice_questions", map[string]any{"concepts": len(lines), "difficulty": target})
	raw, err := deps.LLM.GenerateJSON(ctx, p.System, p.User, prompts.SchemaPracticeQuestions, prompts.PracticeQuestionsSchema())
	done(err)
	if err != nil {
		return out, err
	}
	wires, err := parseQuestions(raw)
	if err != nil {
		return out, err
	}

	known := make(map[string]uuid.UUID, len(in.Concepts))
	for _, c := range in.Concepts {
		known[repotutoring.NormalizeName(c.Name)] = c.ID
	}
	var unknown []string
	for _, w := range wires {
		k := repotutoring.NormalizeName(w.Concept)
		if _, ok := known[k]; !ok && k != "" {
			unknown = append(unknown, w.Concept)
		}
	}
	if len(unknown) > 0 && deps.Concepts != nil {
		found, err := deps.Concepts.GetByNames(dbctx.Context{Ctx: ctx}, in.Subject, unknown)
		if err != nil {
			return out, err
		}
		for k, c := range found {
			known[k] = c.ID
		}
	}

	out.Questions = make([]types.Question, 0, len(wires))
	for i, w := range wires {
		q := types.Question{
			ID:            strings.TrimSpace(w.ID),
			Prompt:        strings.TrimSpace(w.Prompt),
			Type:          normalizeQuestionType(w.Type),
			Difficulty:    w.Difficulty,
			ConceptName:   strings.TrimSpace(w.Concept),
			CorrectAnswer: strings.TrimSpace(w.CorrectAnswer),
			Explanation:   strings.TrimSpace(w.Explanation),
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if q.Difficulty == 0 {
			q.Difficulty = target
		}
		q.Difficulty = clampInt(q.Difficulty, 1, 10)
		if q.Type == tutoring.QuestionMultipleChoice {
			q.Options = cleanStrings(w.Options)
		}
		if id, ok := known[repotutoring.NormalizeName(w.Concept)]; ok {
			id := id
			q.ConceptID = &id
		}
		out.Questions = append(out.Questions, q)
	}
	return out, nil
}

// parseQuestions enforces the question-count and prompt contract.
func parseQuestions(raw []byte) ([]questionWire, error) {
	var w questionsWire
	if err := llm.DecodeJSON(raw, &w); err != nil {
		return nil, err
	}
	if w.Questions == nil {
		return nil, &llm.ContractError{Err: fmt.Errorf("missing fields: questions")}
	}
	qs := *w.Questions
	if len(qs) != prompts.PracticeQuestionCount {
		return nil, &llm.ContractError{Err: fmt.Errorf("want %d questions got %d", prompts.PracticeQuestionCount, len(qs))}
	}
	for i, q := range qs {
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, &llm.ContractError{Err: fmt.Errorf("question %d has an empty prompt", i+1)}
		}
	}
	return qs, nil
}

func normalizeQuestionType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case tutoring.QuestionMultipleChoice, "multiple_choice", "mcq":
		return tutoring.QuestionMultipleChoice
	case tutoring.QuestionProblemSolving, "problem_solving":
		return tutoring.QuestionProblemSolving
	default:
		return tutoring.QuestionShortAnswer
	}
}

type PersistQuestionsDeps struct {
	Practices repos.PracticeRepo
}

type PersistQuestionsInput struct {
	PracticeID uuid.UUID
	Questions  []types.Question
	Difficulty int
	Now        time.Time
}

type PersistQuestionsOutput struct {
	Updated bool      `json:"updated"`
	DueAt   time.Time `json:"dueAt"`
}

// PersistQuestions replaces the placeholder practice's questions. Practice a
// student already started or finished is left alone.
func PersistQuestions(ctx context.Context, deps PersistQuestionsDeps, in PersistQuestionsInput) (PersistQuestionsOutput, error) {
	out := PersistQuestionsOutput{}
	if deps.Practices == nil {
		return out, fmt.Errorf("persist_questions: missing deps")
	}
	if in.PracticeID == uuid.Nil {
		return out, fmt.Errorf("persist_questions: missing practice id")
	}
	raw, err := json.Marshal(in.Questions)
	if err != nil {
		return out, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	out.DueAt = now.UTC().Add(PracticeDueIn)
	out.Updated, err = deps.Practices.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, in.PracticeID,
		[]string{tutoring.PracticeInProgress, tutoring.PracticeCompleted},
		map[string]interface{}{
			"questions":  datatypes.JSON(raw),
			"status":     tutoring.PracticeAssigned,
			"difficulty": clampInt(in.Difficulty, 1, 10),
			"due_at":     out.DueAt,
			"error":      "",
		})
	return out, err
}
