// Package extract turns PDF documents into validated JSON via the model
// API. It owns the prompt registry and the response hygiene rules; it knows
// nothing about jobs or pipelines.
package extract

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Registered prompt spec names.
const (
	SpecPresentationOverview = "presentation_overview"
	SpecDistributorReport    = "distributor_report"
)

//go:embed prompts.yaml
var promptsYAML []byte

// PromptSpec is one entry in the embedded prompt registry.
type PromptSpec struct {
	Name         string   `yaml:"-"`
	System       string   `yaml:"system"`
	Instruction  string   `yaml:"instruction"`
	MaxTokens    int64    `yaml:"max_tokens"`
	RequiredKeys []string `yaml:"required_keys"`
}

var registry = mustLoadRegistry()

func mustLoadRegistry() map[string]PromptSpec {
	var raw map[string]PromptSpec
	if err := yaml.Unmarshal(promptsYAML, &raw); err != nil {
		panic(eris.Wrap(err, "extract: parse embedded prompt registry"))
	}
	for name, spec := range raw {
		spec.Name = name
		raw[name] = spec
	}
	return raw
}

// Spec returns the named prompt spec from the embedded registry.
func Spec(name string) (PromptSpec, error) {
	spec, ok := registry[name]
	if !ok {
		return PromptSpec{}, eris.Errorf("extract: unknown prompt spec %q", name)
	}
	return spec, nil
}
