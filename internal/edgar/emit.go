package edgar

import (
	"path/filepath"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/output"
)

// AnalystSystem is the system message of emitted configs.
const AnalystSystem = "You are a financial analyst. Analyze the following MD&A section."

type emittedConfig struct {
	Prompts map[string]config.Prompt `toml:"prompts" yaml:"prompts"`
	Models  []config.Model           `toml:"models" yaml:"models"`
}

// EmitConfig writes a runnable pipeline config (TOML, or YAML by
// extension) that sends mdaFile to modelName under promptID.
func EmitConfig(path, mdaFile, modelName, promptID string) error {
	system := AnalystSystem
	cfg := emittedConfig{
		Prompts: map[string]config.Prompt{
			promptID: {
				PromptFile: filepath.ToSlash(mdaFile),
				System:     &system,
			},
		},
		Models: []config.Model{{
			Name:    modelName,
			Prompts: []string{promptID},
		}},
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}
	output.Logger.Info("Pipeline config written", "path", path)
	return nil
}
