package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bloomline-ai/promoflow/convengine/record"
)

// Overrides is the YAML overlay operators use to tune the built-in handlers
// without recompiling: keyword lists, prompts, caps, and canned messages.
type Overrides struct {
	Handlers map[string]HandlerOverride `yaml:"handlers"`
}

// HandlerOverride tunes one handler.
type HandlerOverride struct {
	Keywords []string                 `yaml:"keywords,omitempty"`
	Stages   map[string]StageOverride `yaml:"stages,omitempty"`
}

// StageOverride tunes one stage. Zero values leave the built-in untouched.
type StageOverride struct {
	SystemPrompt      string   `yaml:"system_prompt,omitempty"`
	HardCap           int      `yaml:"hard_cap,omitempty"`
	TransitionMessage string   `yaml:"transition_message,omitempty"`
	Suggestions       []string `yaml:"suggestions,omitempty"`
}

// LoadOverrides reads an overrides YAML document.
func LoadOverrides(r io.Reader) (*Overrides, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var out Overrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	return &out, nil
}

// LoadOverridesFile reads an overrides YAML file from disk.
func LoadOverridesFile(path string) (*Overrides, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open overrides: %w", err)
	}
	defer f.Close()
	return LoadOverrides(f)
}

// Apply applies the overrides to a handler set in place. Unknown handler or
// stage names are rejected so typos fail loudly at startup.
func (o *Overrides) Apply(handlers map[record.Handler]*HandlerConfig) error {
	for name, override := range o.Handlers {
		handler := record.Handler(name)
		cfg, ok := handlers[handler]
		if !ok {
			return fmt.Errorf("overrides: unknown handler %q", name)
		}
		if len(override.Keywords) > 0 {
			cfg.Keywords = override.Keywords
		}
		for stageName, stageOverride := range override.Stages {
			stage := record.Stage(stageName)
			stageCfg, ok := cfg.Stages[stage]
			if !ok {
				return fmt.Errorf("overrides: handler %q has no stage %q", name, stageName)
			}
			if stageOverride.SystemPrompt != "" {
				stageCfg.SystemPrompt = stageOverride.SystemPrompt
			}
			if stageOverride.HardCap > 0 {
				stageCfg.HardCap = stageOverride.HardCap
			}
			if stageOverride.TransitionMessage != "" {
				stageCfg.TransitionMessage = stageOverride.TransitionMessage
			}
			if len(stageOverride.Suggestions) > 0 {
				stageCfg.Suggestions = stageOverride.Suggestions
			}
		}
	}
	return ValidateHandlers(handlers)
}
