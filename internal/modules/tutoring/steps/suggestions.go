package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/goals"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/dbctx"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

// MaxSuggestions caps how many suggestions one goal event persists.
const MaxSuggestions = 7

// SuggestionDraft is one parsed model suggestion before it gets an id.
type SuggestionDraft struct {
	Topic              string   `json:"topic"`
	Description        string   `json:"description"`
	RelevanceScore     int      `json:"relevanceScore"`
	Difficulty         string   `json:"difficulty"`
	Prerequisites      []string `json:"prerequisites"`
	EstimatedHours     float64  `json:"estimatedHours"`
	PracticeActivities []string `json:"practiceActivities,omitempty"`
}

type GenerateSuggestionsDeps struct {
	LLM llm.Generator
	Log *logger.Logger
}

type GenerateSuggestionsInput struct {
	Kind       string
	GradeLevel string
	Goal       prompts.GoalLine
	Others     []prompts.GoalLine
}

type GenerateSuggestionsOutput struct {
	Suggestions []SuggestionDraft `json:"suggestions"`
}

type suggestionWire struct {
	Topic              string   `json:"topic"`
	Description        string   `json:"description"`
	RelevanceScore     float64  `json:"relevanceScore"`
	Difficulty         string   `json:"difficulty"`
	Prerequisites      []string `json:"prerequisites"`
	EstimatedHours     float64  `json:"estimatedHours"`
	PracticeActivities []string `json:"practiceActivities"`
}

type suggestionsWire struct {
	Suggestions *[]suggestionWire `json:"suggestions"`
}

// GenerateSuggestions produces study-topic suggestions for a new goal or
// related-subject suggestions for a completed one, depending on Kind.
func GenerateSuggestions(ctx context.Context, deps GenerateSuggestionsDeps, in GenerateSuggestionsInput) (GenerateSuggestionsOutput, error) {
	out := GenerateSuggestionsOutput{Suggestions: []SuggestionDraft{}}
	if deps.LLM == nil {
		return out, fmt.Errorf("generate_suggestions: missing deps")
	}
	var (
		p      prompts.Prompt
		schema string
		shape  map[string]any
	)
	switch in.Kind {
	case goals.SuggestionKindStudyTopic:
		p = prompts.StudySuggestions(in.GradeLevel, in.Goal, in.Others)
		schema, shape = prompts.SchemaStudySuggestions, prompts.StudySuggestionsSchema()
	case goals.SuggestionKindRelatedSubject:
		p = prompts.RelatedSubjectSuggestions(in.GradeLevel, in.Goal, in.Others)
		schema, shape = prompts.SchemaRelatedSuggestions, prompts.RelatedSuggestionsSchema()
	default:
		return out, fmt.Errorf("generate_suggestions: unknown kind %q", in.Kind)
	}

	done := llmTimer(deps.Log, schema, map[string]any{"subject": in.Goal.Subject})
	raw, err := deps.LLM.GenerateJSON(ctx, p.System, p.User, schema, shape)
	done(err)
	if err != nil {
		return out, err
	}
	drafts, err := ParseSuggestions(raw)
	if err != nil {
		return out, err
	}
	if len(drafts) == 0 && deps.Log != nil {
		deps.Log.Warn("Model returned no suggestions", "kind", in.Kind, "subject", in.Goal.Subject)
	}
	out.Suggestions = drafts
	return out, nil
}

// ParseSuggestions requires a suggestions array. An empty array is valid.
func ParseSuggestions(raw []byte) ([]SuggestionDraft, error) {
	var w suggestionsWire
	if err := llm.DecodeJSON(raw, &w); err != nil {
		return nil, err
	}
	if w.Suggestions == nil {
		return nil, &llm.ContractError{Err: fmt.Errorf("missing fields: suggestions")}
	}
	out := make([]SuggestionDraft, 0, len(*w.Suggestions))
	for _, s := range *w.Suggestions {
		topic := strings.TrimSpace(s.Topic)
		if topic == "" {
			continue
		}
		out = append(out, SuggestionDraft{
			Topic:              topic,
			Description:        strings.TrimSpace(s.Description),
			RelevanceScore:     int(math.Round(clampFloat(s.RelevanceScore, 0, 10))),
			Difficulty:         normalizeTier(s.Difficulty),
			Prerequisites:      cleanStrings(s.Prerequisites),
			EstimatedHours:     clampFloat(s.EstimatedHours, 0, math.MaxFloat64),
			PracticeActivities: cleanStrings(s.PracticeActivities),
		})
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out, nil
}

func normalizeTier(s string) string {
	switch t := strings.ToLower(strings.TrimSpace(s)); t {
	case "beginner", "intermediate", "advanced":
		return t
	default:
		return ""
	}
}

// suggestionID derives from the run so a replayed persist step writes the
// same rows.
func suggestionID(runID uuid.UUID, i int) uuid.UUID {
	return uuid.NewSHA1(runID, []byte(fmt.Sprintf("suggestion:%d", i)))
}

type PersistSuggestionsDeps struct {
	Suggestions repos.SuggestionRepo
	Log         *logger.Logger
}

type PersistSuggestionsInput struct {
	RunID     uuid.UUID
	StudentID uuid.UUID
	GoalID    uuid.UUID
	Kind      string
	Drafts    []SuggestionDraft
}

type PersistSuggestionsOutput struct {
	SuggestionIDs []uuid.UUID `json:"suggestionIds"`
	Inserted      int64       `json:"inserted"`
}

// PersistSuggestions stores drafts as pending suggestions linked to the goal.
func PersistSuggestions(ctx context.Context, deps PersistSuggestionsDeps, in PersistSuggestionsInput) (PersistSuggestionsOutput, error) {
	out := PersistSuggestionsOutput{SuggestionIDs: []uuid.UUID{}}
	if deps.Suggestions == nil {
		return out, fmt.Errorf("persist_suggestions: missing deps")
	}
	if in.GoalID == uuid.Nil || in.StudentID == uuid.Nil {
		return out, fmt.Errorf("persist_suggestions: missing goal or student id")
	}
	drafts := in.Drafts
	if len(drafts) > MaxSuggestions {
		drafts = drafts[:MaxSuggestions]
	}
	if len(drafts) == 0 {
		return out, nil
	}
	rows := make([]*types.Suggestion, 0, len(drafts))
	for i, d := range drafts {
		prereq, _ := json.Marshal(nonNil(d.Prerequisites))
		row := &types.Suggestion{
			ID:             suggestionID(in.RunID, i),
			StudentID:      in.StudentID,
			GoalID:         in.GoalID,
			Kind:           in.Kind,
			Topic:          d.Topic,
			Description:    d.Description,
			RelevanceScore: clampInt(d.RelevanceScore, 0, 10),
			Status:         goals.SuggestionPending,
			Difficulty:     d.Difficulty,
			EstimatedHours: clampFloat(d.EstimatedHours, 0, math.MaxFloat64),
			Prerequisites:  datatypes.JSON(prereq),
		}
		if in.Kind == goals.SuggestionKindStudyTopic {
			acts, _ := json.Marshal(nonNil(d.PracticeActivities))
			row.PracticeActivities = datatypes.JSON(acts)
		}
		rows = append(rows, row)
		out.SuggestionIDs = append(out.SuggestionIDs, row.ID)
	}
	n, err := deps.Suggestions.CreateIgnoreExisting(dbctx.Context{Ctx: ctx}, rows)
	if err != nil {
		return PersistSuggestionsOutput{SuggestionIDs: []uuid.UUID{}}, err
	}
	out.Inserted = n
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
