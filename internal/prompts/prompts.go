// Package prompts holds the instruction templates and renders them with the
// current date.
package prompts

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the format substituted for the current_date placeholder.
const DateLayout = "2006-01-02"

// Set is the collection of templates an agent build draws from.
type Set struct {
	Agent       string `yaml:"agent_instructions"`
	Research    string `yaml:"research_instructions"`
	SubResearch string `yaml:"sub_research_prompt"`
	SubCritique string `yaml:"sub_critique_prompt"`
	Search      string `yaml:"search_description"`
}

// Default returns the built-in templates.
func Default() Set {
	return Set{
		Agent:       AgentInstructions,
		Research:    ResearchInstructions,
		SubResearch: SubResearchPrompt,
		SubCritique: SubCritiquePrompt,
		Search:      SearchDescription,
	}
}

// LoadFile reads template overrides from a YAML file. Keys that are absent
// or empty keep their built-in value.
func LoadFile(path string) (Set, error) {
	set := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("reading prompts: %w", err)
	}

	var overrides Set
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return set, fmt.Errorf("parsing prompts %s: %w", path, err)
	}

	merge := func(dst *string, src string) {
		if strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	merge(&set.Agent, overrides.Agent)
	merge(&set.Research, overrides.Research)
	merge(&set.SubResearch, overrides.SubResearch)
	merge(&set.SubCritique, overrides.SubCritique)
	merge(&set.Search, overrides.Search)

	// Validate eagerly so a broken override fails at startup, not mid-build.
	for name, tmpl := range map[string]string{
		"agent_instructions":    set.Agent,
		"research_instructions": set.Research,
		"sub_research_prompt":   set.SubResearch,
		"sub_critique_prompt":   set.SubCritique,
	} {
		if _, err := Format(tmpl, time.Now()); err != nil {
			return set, fmt.Errorf("prompts %s: %s: %w", path, name, err)
		}
	}
	return set, nil
}

// Format substitutes {{.current_date}} in tmpl with the UTC date of now.
func Format(tmpl string, now time.Time) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var b strings.Builder
	data := map[string]string{
		"current_date": now.UTC().Format(DateLayout),
	}
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("formatting template: %w", err)
	}
	return b.String(), nil
}

// FormatNow is Format with the current time.
func FormatNow(tmpl string) (string, error) {
	return Format(tmpl, time.Now())
}
