package harness

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// GameTemplate is a genre starter: a description plus a seed feature list.
type GameTemplate struct {
	Genre       string            `yaml:"genre"`
	Description string            `yaml:"description"`
	Features    []TemplateFeature `yaml:"features"`
}

// TemplateFeature is the template form of a feature; IDs and timestamps
// are assigned at instantiation.
type TemplateFeature struct {
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description,omitempty"`
	Priority           string   `yaml:"priority,omitempty"`
	Tags               []string `yaml:"tags,omitempty"`
	AcceptanceCriteria []string `yaml:"acceptanceCriteria,omitempty"`
	Complexity         int      `yaml:"complexity,omitempty"`
}

// AvailableTemplates lists the embedded template names.
func AvailableTemplates() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadTemplate parses an embedded template by name.
func LoadTemplate(name string) (*GameTemplate, error) {
	data, err := templateFS.ReadFile("templates/" + strings.ToLower(name) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	var template GameTemplate
	if err := yaml.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	return &template, nil
}

// Instantiate converts template features into backlog features.
func (t *GameTemplate) Instantiate() []Feature {
	features := make([]Feature, 0, len(t.Features))
	for _, tf := range t.Features {
		feature := NewFeature(tf.Name)
		feature.Description = tf.Description
		feature.Tags = tf.Tags
		feature.AcceptanceCriteria = tf.AcceptanceCriteria
		feature.Complexity = tf.Complexity
		if tf.Priority != "" {
			feature.Priority = FeaturePriority(tf.Priority)
		}
		features = append(features, feature)
	}
	return features
}
