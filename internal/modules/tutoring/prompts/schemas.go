package prompts

import "sort"

// Schema names double as the strict json_schema name sent to the model.
const (
	SchemaSessionInsights    = "session_insights"
	SchemaPracticeQuestions  = "practice_questions"
	SchemaStudySuggestions   = "study_suggestions"
	SchemaRelatedSuggestions = "related_subject_suggestions"
	SchemaEngagementNudge    = "engagement_nudge"
)

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func intRange(min, max int) map[string]any {
	return map[string]any{"type": "integer", "minimum": min, "maximum": max}
}

func SessionInsightsSchema() map[string]any {
	return object(map[string]any{
		"topics": stringArray(),
		"concepts": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"name":         map[string]any{"type": "string"},
				"difficulty":   intRange(1, 10),
				"masteryLevel": intRange(0, 100),
			}),
		},
		"strengths":           stringArray(),
		"areasForImprovement": stringArray(),
		"actionItems":         stringArray(),
		"suggestedTopics":     stringArray(),
	})
}

func PracticeQuestionsSchema() map[string]any {
	return object(map[string]any{
		"questions": map[string]any{
			"type":     "array",
			"minItems": PracticeQuestionCount,
			"maxItems": PracticeQuestionCount,
			"items": object(map[string]any{
				"id":     map[string]any{"type": "string"},
				"prompt": map[string]any{"type": "string"},
				"type": map[string]any{
					"type": "string",
					"enum": []string{"multiple-choice", "short-answer", "problem-solving"},
				},
				"options":       stringArray(),
				"difficulty":    intRange(1, 10),
				"concept":       map[string]any{"type": "string"},
				"correctAnswer": map[string]any{"type": "string"},
				"explanation":   map[string]any{"type": "string"},
			}),
		},
	})
}

func suggestionsSchema(withActivities bool) map[string]any {
	item := map[string]any{
		"topic":          map[string]any{"type": "string"},
		"description":    map[string]any{"type": "string"},
		"relevanceScore": intRange(0, 10),
		"difficulty": map[string]any{
			"type": "string",
			"enum": []string{"beginner", "intermediate", "advanced"},
		},
		"prerequisites":  stringArray(),
		"estimatedHours": map[string]any{"type": "number"},
	}
	if withActivities {
		item["practiceActivities"] = stringArray()
	}
	return object(map[string]any{
		"suggestions": map[string]any{"type": "array", "items": object(item)},
	})
}

func StudySuggestionsSchema() map[string]any { return suggestionsSchema(true) }

func RelatedSuggestionsSchema() map[string]any { return suggestionsSchema(false) }

func EngagementNudgeSchema() map[string]any {
	return object(map[string]any{
		"title":      map[string]any{"type": "string"},
		"message":    map[string]any{"type": "string"},
		"actionText": map[string]any{"type": "string"},
	})
}
