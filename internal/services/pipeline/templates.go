package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CausalTemplate is one known cause-and-effect pattern the scorer can match
// events against. Templates are configuration, not code.
type CausalTemplate struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	NameVI             string   `yaml:"name_vi,omitempty"`
	Trigger            string   `yaml:"trigger"`
	Chain              []string `yaml:"chain"`
	AffectedIndicators []string `yaml:"affected_indicators,omitempty"`
}

type templateFile struct {
	Templates []CausalTemplate `yaml:"templates"`
}

// LoadTemplates reads the causal template bundle. A missing path returns an
// empty bundle; the scorer works without templates, just with less context.
func LoadTemplates(path string) ([]CausalTemplate, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read template bundle %s: %w", path, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template bundle %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Templates))
	for _, tmpl := range file.Templates {
		if tmpl.ID == "" {
			return nil, fmt.Errorf("template bundle %s contains a template without id", path)
		}
		if _, dup := seen[tmpl.ID]; dup {
			return nil, fmt.Errorf("template bundle %s has duplicate id %q", path, tmpl.ID)
		}
		seen[tmpl.ID] = struct{}{}
	}
	return file.Templates, nil
}

// FormatTemplates renders the bundle as prompt text.
func FormatTemplates(templates []CausalTemplate) string {
	if len(templates) == 0 {
		return "(no causal templates configured)"
	}
	var b strings.Builder
	for _, tmpl := range templates {
		fmt.Fprintf(&b, "- id: %s | %s\n", tmpl.ID, tmpl.Name)
		fmt.Fprintf(&b, "  trigger: %s\n", tmpl.Trigger)
		if len(tmpl.Chain) > 0 {
			fmt.Fprintf(&b, "  chain: %s\n", strings.Join(tmpl.Chain, " -> "))
		}
		if len(tmpl.AffectedIndicators) > 0 {
			fmt.Fprintf(&b, "  affected: %s\n", strings.Join(tmpl.AffectedIndicators, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
