package runtime

import (
	"encoding/json"
	"strings"

	"github.com/prismworks/prism/pkg/memory"
)

// skillMarker introduces a skill declaration in a model reply. The
// payload is a single-line JSON object with name and description.
const skillMarker = "LEARNED_SKILL:"

// parseSkill scans a reply for a skill declaration. Parsing is
// best-effort: a malformed declaration is ignored and the raw text is
// still returned to the caller, so the user never loses an answer to
// a formatting mistake.
func parseSkill(text string) *memory.LearnedSkill {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, skillMarker) {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, skillMarker))
		var decl struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal([]byte(payload), &decl); err != nil {
			continue
		}
		if decl.Name == "" {
			continue
		}
		return &memory.LearnedSkill{
			Name:        decl.Name,
			Description: decl.Description,
		}
	}
	return nil
}

// provenanceMaxLen caps the triggering message recorded on a skill so
// the provenance field stays a one-line summary.
const provenanceMaxLen = 120

// skillProvenance returns the message that triggered a skill
// declaration, trimmed and truncated on a rune boundary.
func skillProvenance(message string) string {
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) <= provenanceMaxLen {
		return message
	}
	return string(runes[:provenanceMaxLen]) + "..."
}

// stripSkillMarker removes skill declaration lines from the reply
// shown to the user.
func stripSkillMarker(text string) string {
	if !strings.Contains(text, skillMarker) {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), skillMarker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
