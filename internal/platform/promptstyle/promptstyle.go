package promptstyle

import "strings"

const marker = "STUDY_COMPANION_PROMPT_STYLE_V1"

// ApplySystem prepends the shared guidance block to a system prompt. Mode
// "json" adds the single-object output rule; anything else asks for concise
// prose. Prompts that already carry the block are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou support a tutoring study companion for school-age students.")
	if summary := firstLine(base); summary != "" {
		b.WriteString("\nTask summary: " + summary)
	}
	b.WriteString("\nFollow the system and user instructions precisely.")
	b.WriteString("\nGround every statement in the provided inputs and never invent facts about the student.")
	b.WriteString("\nKeep language age-appropriate and encouraging.")
	if strings.EqualFold(strings.TrimSpace(mode), "json") {
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
	} else {
		b.WriteString("\nBe concise.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
