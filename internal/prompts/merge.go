package prompts

import (
	"maps"

	"github.com/daryltucker/llm-pipeline/internal/config"
)

// Settings are the effective generation settings for a (model, prompt) pair.
type Settings struct {
	System      *string
	Temperature *float64
	Options     map[string]any
}

// Merge layers the prompt definition over the model entry. Options are a
// shallow merge with prompt keys winning; system and temperature take the
// prompt value when it is set.
func Merge(m config.Model, p config.Prompt) Settings {
	s := Settings{
		System:      m.System,
		Temperature: m.Temperature,
		Options:     make(map[string]any, len(m.Options)+len(p.Options)),
	}
	if p.System != nil {
		s.System = p.System
	}
	if p.Temperature != nil {
		s.Temperature = p.Temperature
	}
	maps.Copy(s.Options, m.Options)
	maps.Copy(s.Options, p.Options)
	return s
}
