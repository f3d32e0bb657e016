package classify

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/provider"
)

// Themes returns up to MaxThemes tags in taxonomy order. Keyword matches
// win; otherwise the provider's answer is filtered to the taxonomy. The
// result is never empty.
func (c *Classifier) Themes(ctx context.Context, text string) Outcome[[]string] {
	if matched := c.keywordThemes(text); len(matched) > 0 {
		return fromKeyword(matched)
	}

	resp, err := c.complete(ctx, provider.Request{
		Task:      "themes",
		System:    themesSystemPrompt(c.themeList),
		Prompt:    truncateRunes(text, c.maxInput),
		MaxTokens: 50,
	})
	if err != nil {
		logFallback("themes", err)
		return fallback([]string{model.ThemeGeneral}, err)
	}

	tags := c.parseThemes(resp)
	if len(tags) == 0 {
		err := eris.Errorf("classify: no known themes in %q", truncateRunes(resp, 60))
		logFallback("themes", err)
		return fallback([]string{model.ThemeGeneral}, err)
	}
	return fromProvider(tags)
}

func (c *Classifier) keywordThemes(text string) []string {
	folded := fold(text)
	var out []string
	for _, th := range c.themes {
		if matchAny(folded, th.keywords) {
			out = append(out, th.name)
			if len(out) == MaxThemes {
				break
			}
		}
	}
	return out
}

// parseThemes splits a free-form provider answer and keeps known tags,
// reported in taxonomy order.
func (c *Classifier) parseThemes(resp string) []string {
	found := make(map[string]bool)
	parts := strings.FieldsFunc(resp, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';' || r == '|'
	})
	for _, p := range parts {
		if name, ok := c.themeSet[themeKey(strings.Trim(p, " \t\r\"'`[]().*-"))]; ok {
			found[name] = true
		}
	}

	var out []string
	for _, th := range c.themes {
		if found[th.name] {
			out = append(out, th.name)
			if len(out) == MaxThemes {
				break
			}
		}
	}
	return out
}

// themeKey folds a theme name for comparison: case-insensitive, with
// spaces treated as hyphens.
func themeKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
