package classify

import (
	"fmt"
	"strings"

	"github.com/kraigferns/feedback-intel/internal/model"
)

const urgencySystemPrompt = `Classify the urgency of a piece of customer feedback. Answer with exactly one word: critical, high, medium or low.`

const sentimentSystemPrompt = `Rate the sentiment of a piece of customer feedback. Respond with a valid JSON object only: {"sentiment": "positive|negative|neutral", "score": <-1.0 to 1.0>}`

func themesSystemPrompt(themes string) string {
	return fmt.Sprintf("Tag a piece of customer feedback with 1 to %d themes chosen only from this list: %s. Respond with the theme names separated by commas and nothing else.", MaxThemes, themes)
}

func summarySystemPrompt(max int) string {
	return fmt.Sprintf("Summarize a piece of customer feedback in one sentence of at most %d characters. Respond with the sentence only.", max)
}

// parseUrgency accepts resp only when its first word is a level, after an
// optional "urgency" label. "Not critical, low" is rejected.
func parseUrgency(resp string) (model.Urgency, bool) {
	words := strings.FieldsFunc(strings.ToLower(resp), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if len(words) > 0 && words[0] == "urgency" {
		words = words[1:]
	}
	if len(words) == 0 {
		return "", false
	}
	if u := model.Urgency(words[0]); u.Valid() {
		return u, true
	}
	return "", false
}

// parseSummary keeps the first non-empty line, unquoted and bounded.
func parseSummary(resp string, max int) string {
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "\"'“”`")
		line = strings.TrimSpace(strings.TrimPrefix(line, "Summary:"))
		if line != "" {
			return Ellipsize(line, max)
		}
	}
	return ""
}
