/*
PURPOSE:
  Defines the configuration structure and loading logic for llm-pipeline.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Declare the backend, backend settings, models and the prompt registry in
    one table-oriented file (TOML).

  Implementation-discovered:
  - YAML is accepted as well (same keys) since the existing fleet tooling
    is configured in YAML.
  - Environment variables override the file (LLM_PIPELINE_*, OLLAMA_HOST,
    HF_TOKEN, HF_ENDPOINT); a .env file is honoured.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine, internal/backend, internal/edgar
  - Dependencies: github.com/BurntSushi/toml, gopkg.in/yaml.v3,
    github.com/joho/godotenv

ERROR HANDLING:
  - Every load failure wraps model.ErrConfig (fatal, aborts before any run).

IMPLEMENTATION RULES:
  - Config struct tags must support both toml and yaml.
  - Defaults live in DefaultConfig() and are overwritten by the file.

USAGE:
  cfg, err := config.Load("pipeline.toml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to the struct and update DefaultConfig().

RELATED FILES:
  - internal/config/env.go
  - internal/cli/run.go

MAINTENANCE:
  - Update when adding new backend settings.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"gopkg.in/yaml.v3"
)

// Config represents the full configuration for llm-pipeline.
type Config struct {
	LLM     LLMConfig         `toml:"llm" yaml:"llm"`
	Ollama  OllamaConfig      `toml:"ollama" yaml:"ollama"`
	HF      HFConfig          `toml:"hf" yaml:"hf"`
	Output  OutputConfig      `toml:"output" yaml:"output"`
	Models  []Model           `toml:"models" yaml:"models"`
	Prompts map[string]Prompt `toml:"prompts" yaml:"prompts"`

	// path is the file the config was loaded from, if any.
	path string
}

// LLMConfig selects the backend.
type LLMConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
}

// OllamaConfig configures the remote-server backend.
type OllamaConfig struct {
	Host        string   `toml:"host" yaml:"host"`
	Stream      bool     `toml:"stream" yaml:"stream"`
	KeepAlive   string   `toml:"keep_alive" yaml:"keep_alive"`
	LoadTimeout Duration `toml:"load_timeout" yaml:"load_timeout"`
	Timeout     Duration `toml:"timeout" yaml:"timeout"`
}

// HFConfig configures the in-process backend.
type HFConfig struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	Token     string `toml:"token" yaml:"token"`
	CacheDir  string `toml:"cache_dir" yaml:"cache_dir"`
	Runtime   string `toml:"runtime" yaml:"runtime"`
	Device    string `toml:"device" yaml:"device"`
	GPULayers int    `toml:"gpu_layers" yaml:"gpu_layers"`
	CacheSize int    `toml:"cache_size" yaml:"cache_size"`
}

// OutputConfig controls where reports go.
type OutputConfig struct {
	Dir   string `toml:"dir" yaml:"dir"`
	Index bool   `toml:"index" yaml:"index"`
}

// Model is one entry of the ordered [[models]] list.
type Model struct {
	Name        string         `toml:"name" yaml:"name"`
	System      *string        `toml:"system,omitempty" yaml:"system,omitempty"`
	Temperature *float64       `toml:"temperature,omitempty" yaml:"temperature,omitempty"`
	Options     map[string]any `toml:"options,omitempty" yaml:"options,omitempty"`
	Prompts     []string       `toml:"prompts" yaml:"prompts"`
}

// Prompt is one entry of the [prompts] registry. Exactly one of Prompt or
// PromptFile is expected.
type Prompt struct {
	Prompt      string         `toml:"prompt,omitempty" yaml:"prompt,omitempty"`
	PromptFile  string         `toml:"prompt_file,omitempty" yaml:"prompt_file,omitempty"`
	System      *string        `toml:"system,omitempty" yaml:"system,omitempty"`
	Temperature *float64       `toml:"temperature,omitempty" yaml:"temperature,omitempty"`
	Options     map[string]any `toml:"options,omitempty" yaml:"options,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{Backend: "ollama"},
		Ollama: OllamaConfig{
			Host:        "http://localhost:11434",
			LoadTimeout: Duration(5 * time.Minute),
			Timeout:     Duration(30 * time.Minute),
		},
		HF: HFConfig{
			Endpoint:  "https://huggingface.co",
			CacheDir:  defaultCacheDir(),
			Runtime:   "llama-server",
			Device:    "cpu",
			CacheSize: 2,
		},
		Output: OutputConfig{
			Dir:   "results",
			Index: true,
		},
	}
}

// Load reads configuration from a file. The format is picked from the
// extension: .yaml/.yml is YAML, anything else is TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file not found: %s", model.ErrConfig, path)
		}
		return nil, fmt.Errorf("%w: failed to read config file %s: %v", model.ErrConfig, path, err)
	}

	cfg := DefaultConfig()
	cfg.path = path

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %v", model.ErrConfig, path, err)
		}
	} else {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file %s: %v", model.ErrConfig, path, err)
		}
		for _, key := range md.Undecoded() {
			// options tables are open maps, so anything left is a typo
			output.Logger.Warn("Ignoring unknown config key", "key", key.String(), "file", path)
		}
	}

	return cfg, nil
}

// Save writes v to path, encoding by extension like Load.
func Save(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		return enc.Close()
	}
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// Path returns the file the config was loaded from ("" if built in code).
func (c *Config) Path() string {
	return c.path
}

// BaseDir is the directory relative prompt files fall back to.
func (c *Config) BaseDir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

// Validate checks the fields required before any run can start.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("%w: no models defined in config", model.ErrConfig)
	}
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: models[%d] has no name", model.ErrConfig, i)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: model %q is declared twice", model.ErrConfig, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// DanglingPrompts lists "model/prompt" pairs whose prompt id is missing
// from the registry. These are reported, not fatal.
func (c *Config) DanglingPrompts() []string {
	var out []string
	for _, m := range c.Models {
		for _, id := range m.Prompts {
			if _, ok := c.Prompts[id]; !ok {
				out = append(out, m.Name+"/"+id)
			}
		}
	}
	return out
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "llm-pipeline", "hf")
	}
	return filepath.Join(".cache", "llm-pipeline", "hf")
}
