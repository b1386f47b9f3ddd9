package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"placement-ai/types"
)

var (
	collapseRe = regexp.MustCompile(`\s+`)
	// Strip everything outside words and basic punctuation so embeddings
	// are not dominated by markup or emoji noise in free-text fields.
	junkRe = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?:;/()'-]`)
)

func cleanText(text string) string {
	text = junkRe.ReplaceAllString(text, "")
	text = collapseRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// BuildDocument flattens an experience into the searchable text the
// chunker splits. The header lines carry company, role and year so that
// even a chunk from deep inside the record embeds its provenance.
func BuildDocument(exp types.Experience) string {
	var parts []string

	parts = append(parts, "Company: "+orUnknown(exp.CompanyName))
	parts = append(parts, "Role: "+orUnknown(exp.Role))
	if exp.InterviewYear > 0 {
		parts = append(parts, fmt.Sprintf("Year: %d", exp.InterviewYear))
	}
	if exp.OfferStatus != "" {
		parts = append(parts, "Result: "+exp.OfferStatus)
	}
	if exp.DifficultyLevel > 0 {
		parts = append(parts, fmt.Sprintf("Difficulty: %d/5", exp.DifficultyLevel))
	}
	if overall := cleanText(exp.Overall); overall != "" {
		parts = append(parts, overall)
	}
	if tips := cleanText(exp.Tips); tips != "" {
		parts = append(parts, "Tips: "+tips)
	}

	for _, round := range exp.Rounds {
		line := fmt.Sprintf("Round %d: %s", round.Number, orUnknown(round.Type))
		if desc := cleanText(round.Description); desc != "" {
			line += " - " + desc
		}
		parts = append(parts, line)
	}

	for _, q := range exp.Questions {
		text := cleanText(q.Text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Question (%s, %s): %s", q.Type, q.Topic, text))
		if approach := cleanText(q.Approach); approach != "" {
			parts = append(parts, "Approach: "+approach)
		}
	}

	return strings.Join(parts, "\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
