package classify

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/kraigferns/feedback-intel/internal/model"
)

// Theme is one taxonomy entry and the keywords that select it.
//
// Keywords match whole words, case-insensitively. A trailing "*" turns a
// keyword into a stem: "fail*" matches "fail", "failing" and "failure",
// while "down" matches "down" but not "download".
type Theme struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// UrgencyKeywords are the rule tiers checked before asking the provider.
type UrgencyKeywords struct {
	Critical []string `yaml:"critical"`
	High     []string `yaml:"high"`
}

// Taxonomy is the theme list plus urgency keywords. Declaration order of
// Themes is the order results are reported in.
type Taxonomy struct {
	Themes  []Theme         `yaml:"themes"`
	Urgency UrgencyKeywords `yaml:"urgency"`
}

// DefaultTaxonomy returns the built-in theme and urgency keyword lists.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Themes: []Theme{
			{Name: "documentation", Keywords: []string{"doc", "docs", "documentation", "tutorial*", "guide*", "example*", "readme", "outdated", "unclear"}},
			{Name: "reliability", Keywords: []string{"down", "outage*", "crash*", "fail*", "error*", "unstable", "downtime", "broken", "flaky", "bug*"}},
			{Name: "performance", Keywords: []string{"slow*", "latency", "lag*", "timeout*", "performance", "speed", "memory", "cpu"}},
			{Name: "developer-experience", Keywords: []string{"sdk*", "api*", "cli", "onboarding", "confusing", "setup", "integration*", "dx"}},
			{Name: "pricing", Keywords: []string{"price*", "pricing", "cost", "costs", "costly", "expensive", "billing", "invoice*", "cheaper", "subscription*"}},
			{Name: "features", Keywords: []string{"feature*", "wish", "would love", "roadmap", "missing", "support for", "please add"}},
			{Name: "support", Keywords: []string{"support", "ticket*", "response time", "customer service", "no reply", "agent*"}},
			{Name: "security", Keywords: []string{"security", "vulnerab*", "auth", "authentication", "login*", "password*", "leak*", "breach*", "sso", "cve", "permission*"}},
		},
		Urgency: UrgencyKeywords{
			Critical: []string{"urgent*", "down", "outage*", "production", "critical*", "emergency", "asap", "sla"},
			High:     []string{"broken", "fail*", "error*", "blocked", "cannot", "can't", "stuck", "alternative*", "leaving"},
		},
	}
}

// LoadTaxonomy reads a YAML taxonomy from path. An empty path returns
// DefaultTaxonomy. Sections omitted from the file keep their defaults.
func LoadTaxonomy(path string) (Taxonomy, error) {
	def := DefaultTaxonomy()
	if path == "" {
		return def, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, eris.Wrapf(err, "classify: read taxonomy %s", path)
	}

	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Taxonomy{}, eris.Wrapf(err, "classify: parse taxonomy %s", path)
	}
	if len(t.Themes) == 0 {
		t.Themes = def.Themes
	}
	if len(t.Urgency.Critical) == 0 {
		t.Urgency.Critical = def.Urgency.Critical
	}
	if len(t.Urgency.High) == 0 {
		t.Urgency.High = def.Urgency.High
	}
	if err := t.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return t, nil
}

// Validate rejects unnamed, duplicate or reserved theme names. Names are
// compared case-insensitively.
func (t Taxonomy) Validate() error {
	seen := make(map[string]bool, len(t.Themes))
	for i, th := range t.Themes {
		name := strings.TrimSpace(th.Name)
		key := themeKey(name)
		switch {
		case name == "":
			return eris.Errorf("classify: theme %d has no name", i)
		case key == model.ThemeGeneral:
			return eris.Errorf("classify: theme name %q is reserved", name)
		case seen[key]:
			return eris.Errorf("classify: duplicate theme %q", name)
		}
		seen[key] = true
	}
	return nil
}

// Names returns theme names in declaration order.
func (t Taxonomy) Names() []string {
	out := make([]string, 0, len(t.Themes))
	for _, th := range t.Themes {
		out = append(out, th.Name)
	}
	return out
}
