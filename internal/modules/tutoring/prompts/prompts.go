package prompts

import (
	"fmt"
	"strings"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/promptstyle"
)

const PracticeQuestionCount = 5

// Prompt is one system/user pair sent to the LLM gateway.
type Prompt struct {
	System string
	User   string
}

const insightsSystem = `You analyze tutoring session transcripts for a study companion.
Return only JSON matching the provided schema.
- topics: subjects covered in the session.
- concepts: each concept taught, with difficulty 1-10 and the student's observed masteryLevel 0-100.
- strengths: what the student did well.
- areasForImprovement: specific gaps observed.
- actionItems: concrete next steps for the student.
- suggestedTopics: follow-up topics worth studying next.
Use empty arrays when the transcript gives no evidence. Never invent concepts that were not discussed.`

func SessionInsights(subject, transcript string) Prompt {
	var b strings.Builder
	if s := strings.TrimSpace(subject); s != "" {
		fmt.Fprintf(&b, "Subject: %s\n\n", s)
	}
	b.WriteString("Transcript:\n")
	b.WriteString(strings.TrimSpace(transcript))
	return jsonPrompt(insightsSystem, b.String())
}

func jsonPrompt(system, user string) Prompt {
	return Prompt{System: promptstyle.ApplySystem(system, "json"), User: user}
}

// ConceptLine is one concept as shown to the practice generator.
type ConceptLine struct {
	Name         string
	Difficulty   int
	MasteryLevel int
}

// PracticeQuestions builds the question prompt. prior holds excerpts of the
// student's earlier sessions and may be empty.
func PracticeQuestions(gradeLevel, subject string, concepts []ConceptLine, targetDifficulty int, prior []string) Prompt {
	system := fmt.Sprintf(`You write practice questions for a student.
Return exactly %d questions as JSON matching the provided schema.
Each question targets difficulty %d on a 1-10 scale unless a concept clearly needs easier scaffolding.
Mix question types. Multiple-choice questions need 3-5 options and a correctAnswer equal to one option.
The concept field must be copied verbatim from the concept list.`, PracticeQuestionCount, targetDifficulty)

	var b strings.Builder
	if g := strings.TrimSpace(gradeLevel); g != "" {
		fmt.Fprintf(&b, "Grade level: %s\n", g)
	}
	if s := strings.TrimSpace(subject); s != "" {
		fmt.Fprintf(&b, "Subject: %s\n", s)
	}
	fmt.Fprintf(&b, "Target difficulty: %d\n", targetDifficulty)
	b.WriteString("Concepts:\n")
	if len(concepts) == 0 {
		b.WriteString("- (none recorded; choose core concepts for the subject)\n")
	}
	for _, c := range concepts {
		fmt.Fprintf(&b, "- %s (difficulty %d, mastery %d/100)\n", c.Name, c.Difficulty, c.MasteryLevel)
	}
	if len(prior) > 0 {
		b.WriteString("Earlier session excerpts (build on these, do not repeat them):\n")
		for _, x := range prior {
			fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(x, "\n", " "))
		}
	}
	return jsonPrompt(system, b.String())
}

// GoalLine summarizes a goal for suggestion prompts.
type GoalLine struct {
	Subject     string
	Description string
}

func StudySuggestions(gradeLevel string, goal GoalLine, others []GoalLine) Prompt {
	system := `You plan study work toward a student's new learning goal.
Return 5 to 7 suggestions as JSON matching the provided schema.
Each suggestion is a study topic with concrete practice activities that build toward the goal,
a difficulty tier, prerequisites, estimated effort in hours and a relevanceScore from 0 to 10.
Avoid repeating work already covered by the student's other goals.`
	return jsonPrompt(system, goalContext(gradeLevel, "New goal", goal, "Other goals", others))
}

func RelatedSubjectSuggestions(gradeLevel string, goal GoalLine, completed []GoalLine) Prompt {
	system := `A student just completed a learning goal. Suggest related subjects to pursue next.
Return exactly 5 suggestions as JSON matching the provided schema, each with a difficulty tier,
prerequisites, estimated effort in hours and a relevanceScore from 0 to 10.
Do not suggest subjects the student has already completed.`
	return jsonPrompt(system, goalContext(gradeLevel, "Completed goal", goal, "Previously completed goals", completed))
}

func goalContext(gradeLevel, goalLabel string, goal GoalLine, othersLabel string, others []GoalLine) string {
	var b strings.Builder
	if g := strings.TrimSpace(gradeLevel); g != "" {
		fmt.Fprintf(&b, "Grade level: %s\n", g)
	}
	fmt.Fprintf(&b, "%s: %s", goalLabel, strings.TrimSpace(goal.Subject))
	if d := strings.TrimSpace(goal.Description); d != "" {
		fmt.Fprintf(&b, " - %s", d)
	}
	b.WriteString("\n")
	if len(others) > 0 {
		fmt.Fprintf(&b, "%s:\n", othersLabel)
		for _, o := range others {
			fmt.Fprintf(&b, "- %s", strings.TrimSpace(o.Subject))
			if d := strings.TrimSpace(o.Description); d != "" {
				fmt.Fprintf(&b, ": %s", d)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func EngagementNudge(name string, sessionsSoFar, minSessions, daysSinceFirst int, windowElapsed bool) Prompt {
	system := `You write short, encouraging messages that invite a student back to tutoring.
Return JSON matching the provided schema: a title under 60 characters, a message of at most
two sentences, and a short call-to-action. Be warm and specific, never guilt-inducing.`
	var b strings.Builder
	fmt.Fprintf(&b, "Student first name: %s\n", firstName(name))
	fmt.Fprintf(&b, "Sessions so far: %d (goal: %d in their first week)\n", sessionsSoFar, minSessions)
	fmt.Fprintf(&b, "Days since first session: %d\n", daysSinceFirst)
	if windowElapsed {
		b.WriteString("Their first week has just ended.\n")
	}
	return jsonPrompt(system, b.String())
}

func firstName(name string) string {
	f := strings.Fields(name)
	if len(f) == 0 {
		return "there"
	}
	return f[0]
}
