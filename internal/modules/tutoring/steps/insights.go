package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/prompts"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/llm"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type ExtractInsightsDeps struct {
	LLM llm.Generator
	Log *logger.Logger
}

type ExtractInsightsInput struct {
	Subject    string
	Transcript string
}

type conceptWire struct {
	Name         string `json:"name"`
	Difficulty   int    `json:"difficulty"`
	MasteryLevel int    `json:"masteryLevel"`
}

// insightsWire mirrors the model contract. Pointer slices distinguish a
// missing field from an empty one.
type insightsWire struct {
	Topics              *[]string      `json:"topics"`
	Concepts            *[]conceptWire `json:"concepts"`
	Strengths           *[]string      `json:"strengths"`
	AreasForImprovement *[]string      `json:"areasForImprovement"`
	ActionItems         *[]string      `json:"actionItems"`
	SuggestedTopics     *[]string      `json:"suggestedTopics"`
}

// ExtractInsights turns a transcript into a SessionAnalysis. A response that
// is not valid JSON or lacks a contract field is an error, never a default.
func ExtractInsights(ctx context.Context, deps ExtractInsightsDeps, in ExtractInsightsInput) (types.SessionAnalysis, error) {
	out := types.SessionAnalysis{}
	if deps.LLM == nil {
		return out, fmt.Errorf("extract_insights: missing deps")
	}
	if strings.TrimSpace(in.Transcript) == "" {
		return out, fmt.Errorf("extract_insights: empty transcript")
	}

	p := prompts.SessionInsights(in.Subject, in.Transcript)
	done := llmTimer(deps.Log, "session_insights", map[string]any{"transcript_chars": len(in.Transcript)})
	raw, err := deps.LLM.GenerateJSON(ctx, p.System, p.User, prompts.SchemaSessionInsights, prompts.SessionInsightsSchema())
	done(err)
	if err != nil {
		return out, err
	}
	return ParseInsights(raw)
}

// ParseInsights validates and normalizes a raw session_insights response.
func ParseInsights(raw []byte) (types.SessionAnalysis, error) {
	out := types.SessionAnalysis{}
	var w insightsWire
	if err := llm.DecodeJSON(raw, &w); err != nil {
		return out, err
	}
	missing := []string{}
	for name, present := range map[string]bool{
		"topics":              w.Topics != nil,
		"concepts":            w.Concepts != nil,
		"strengths":           w.Strengths != nil,
		"areasForImprovement": w.AreasForImprovement != nil,
		"actionItems":         w.ActionItems != nil,
	} {
		if !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return out, &llm.ContractError{Err: fmt.Errorf("missing fields: %s", strings.Join(sortedCopy(missing), ", "))}
	}

	out.Topics = cleanStrings(*w.Topics)
	out.Strengths = cleanStrings(*w.Strengths)
	out.AreasForImprovement = cleanStrings(*w.AreasForImprovement)
	out.ActionItems = cleanStrings(*w.ActionItems)
	out.SuggestedTopics = []string{}
	if w.SuggestedTopics != nil {
		out.SuggestedTopics = cleanStrings(*w.SuggestedTopics)
	}
	out.Concepts = make([]types.ObservedConcept, 0, len(*w.Concepts))
	seen := map[string]int{}
	for _, c := range *w.Concepts {
		name := strings.Join(strings.Fields(c.Name), " ")
		if name == "" {
			continue
		}
		oc := types.ObservedConcept{
			Name:         name,
			Difficulty:   clampInt(c.Difficulty, 1, 10),
			MasteryLevel: clampInt(c.MasteryLevel, 0, 100),
		}
		key := strings.ToLower(name)
		if i, dup := seen[key]; dup {
			if oc.MasteryLevel > out.Concepts[i].MasteryLevel {
				out.Concepts[i].MasteryLevel = oc.MasteryLevel
			}
			continue
		}
		seen[key] = len(out.Concepts)
		out.Concepts = append(out.Concepts, oc)
	}
	return out, nil
}

// IsContractViolation reports whether err came from a malformed model response.
func IsContractViolation(err error) bool {
	var ce *llm.ContractError
	return errors.As(err, &ce)
}
