/*
PURPOSE:
  Resolves prompt ids against the [prompts] registry and loads prompt text,
  either inline or from a prompt file.

REQUIREMENTS:
  User-specified:
  - A prompt file may hold several prompts separated by a "---" line.
  - Without the separator, every non-blank line is its own prompt.
  - Several prompts from one file run as {prompt_id}-{n}.

  Implementation-discovered:
  - Relative prompt_file paths are tried against the working directory
    first, then next to the config file.
  - Windows line endings are normalised before splitting.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Uses: internal/config, internal/model

ERROR HANDLING:
  - Missing ids wrap model.ErrPromptNotFound.
  - Empty definitions wrap model.ErrConfig (reported per prompt, not fatal).

USAGE:
  def, err := prompts.Resolve("summary", cfg.Prompts)
  texts, err := prompts.Texts(def, cfg.BaseDir())

RELATED FILES:
  - internal/prompts/merge.go
*/

package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/model"
)

// Separator splits multi-prompt files.
const Separator = "\n---\n"

// Resolve returns the registry entry for id unchanged.
func Resolve(id string, registry map[string]config.Prompt) (config.Prompt, error) {
	def, ok := registry[id]
	if !ok {
		return config.Prompt{}, fmt.Errorf("%w: prompt %q not found in [prompts]", model.ErrPromptNotFound, id)
	}
	return def, nil
}

// Split breaks file contents into prompts.
func Split(text string) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))

	var parts []string
	// Any "---" switches the file to separator mode, even inline.
	if strings.Contains(text, strings.TrimSpace(Separator)) {
		parts = strings.Split(text, Separator)
	} else {
		parts = strings.Split(text, "\n")
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFile reads and splits a prompt file.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Split(string(data)), nil
}

// Texts returns the prompt strings a definition expands to.
func Texts(def config.Prompt, baseDir string) ([]string, error) {
	if def.PromptFile == "" {
		if def.Prompt == "" {
			return nil, fmt.Errorf("%w: prompt has neither prompt nor prompt_file", model.ErrConfig)
		}
		return []string{def.Prompt}, nil
	}

	path, err := locate(def.PromptFile, baseDir)
	if err != nil {
		return nil, err
	}
	texts, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("prompt file %s is empty", path)
	}
	return texts, nil
}

// RunID names the output file of the idx-th (1-based) of total prompts.
func RunID(promptID string, idx, total int) string {
	if total > 1 {
		return fmt.Sprintf("%s-%d", promptID, idx)
	}
	return promptID
}

func locate(path, baseDir string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		alt := filepath.Join(baseDir, path)
		if _, err := os.Stat(alt); err == nil {
			return alt, nil
		}
	}
	return "", fmt.Errorf("prompt file not found: %s: %w", path, os.ErrNotExist)
}
