// Package classify turns raw feedback text into themes, urgency, sentiment
// and a short summary. Keyword rules run first; the provider is consulted
// only when rules do not decide, and every provider failure degrades to a
// fixed default.
package classify

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/provider"
)

// MaxThemes bounds the number of tags attached to one item.
const MaxThemes = 3

// ErrNoProvider is recorded when a fallback was needed but no provider is set.
var ErrNoProvider = eris.New("classify: no provider configured")

type compiledTheme struct {
	name     string
	keywords []keyword
}

// Classifier runs every text classification task. It is safe for
// concurrent use.
type Classifier struct {
	provider provider.Provider

	themes    []compiledTheme
	themeSet  map[string]string // themeKey -> name
	themeList string
	critical  []keyword
	high      []keyword

	maxInput       int
	sentimentInput int
	summaryMax     int
}

// New builds a Classifier over tax. p may be nil, in which case every
// provider fallback resolves to its default.
func New(p provider.Provider, tax Taxonomy, cfg config.ClassifyConfig) (*Classifier, error) {
	if err := tax.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		provider:       p,
		themeSet:       make(map[string]string, len(tax.Themes)),
		critical:       compile(tax.Urgency.Critical),
		high:           compile(tax.Urgency.High),
		maxInput:       positiveOr(cfg.MaxInputChars, 500),
		sentimentInput: positiveOr(cfg.SentimentInputChars, 512),
		summaryMax:     positiveOr(cfg.SummaryMaxChars, 120),
	}
	for _, th := range tax.Themes {
		name := strings.TrimSpace(th.Name)
		c.themes = append(c.themes, compiledTheme{name: name, keywords: compile(th.Keywords)})
		c.themeSet[themeKey(name)] = name
	}
	c.themeList = strings.Join(tax.Names(), ", ")
	return c, nil
}

func (c *Classifier) complete(ctx context.Context, req provider.Request) (string, error) {
	if c.provider == nil {
		return "", ErrNoProvider
	}
	return c.provider.Complete(ctx, req)
}

func logFallback(task string, err error) {
	zap.L().Debug("classify: using default",
		zap.String("task", task),
		zap.Error(err),
	)
}

// Urgency applies the tier-aware keyword rules, then asks the provider.
// Unusable provider output resolves to medium.
func (c *Classifier) Urgency(ctx context.Context, text string, tier model.Tier) Outcome[model.Urgency] {
	folded := fold(text)
	enterprise := tier == model.TierEnterprise

	if matchAny(folded, c.critical) {
		if enterprise {
			return fromKeyword(model.UrgencyCritical)
		}
		return fromKeyword(model.UrgencyHigh)
	}
	if matchAny(folded, c.high) {
		if enterprise {
			return fromKeyword(model.UrgencyHigh)
		}
		return fromKeyword(model.UrgencyMedium)
	}

	resp, err := c.complete(ctx, provider.Request{
		Task:      "urgency",
		System:    urgencySystemPrompt,
		Prompt:    truncateRunes(text, c.maxInput),
		MaxTokens: 10,
	})
	if err != nil {
		logFallback("urgency", err)
		return fallback(model.UrgencyMedium, err)
	}
	u, ok := parseUrgency(resp)
	if !ok {
		err := eris.Errorf("classify: unrecognized urgency %q", truncateRunes(resp, 40))
		logFallback("urgency", err)
		return fallback(model.UrgencyMedium, err)
	}
	return fromProvider(u)
}

// Summary asks the provider for a one-sentence summary within the
// character budget. On failure the original text is truncated instead.
func (c *Classifier) Summary(ctx context.Context, text string) Outcome[string] {
	resp, err := c.complete(ctx, provider.Request{
		Task:      "summary",
		System:    summarySystemPrompt(c.summaryMax),
		Prompt:    truncateRunes(text, c.maxInput),
		MaxTokens: 100,
	})
	if err == nil {
		if s := parseSummary(resp, c.summaryMax); s != "" {
			return fromProvider(s)
		}
		err = eris.New("classify: empty summary")
	}
	logFallback("summary", err)
	return fallback(Ellipsize(strings.TrimSpace(text), c.summaryMax), err)
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Ellipsize shortens s to at most max runes, marking the cut with "...".
func Ellipsize(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return truncateRunes(s, max)
	}
	return strings.TrimRight(truncateRunes(s, max-3), " ") + "..."
}
