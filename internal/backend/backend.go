/*
PURPOSE:
  Defines the backend contract and the closed set of backend variants.

REQUIREMENTS:
  User-specified:
  - Two interchangeable backends: a local model server reached over HTTP
    (Ollama) and an in-process loader for Hugging Face weights.
  - Each backend can make a model ready and run a single prompt.

  Implementation-discovered:
  - Only two variants exist, so selection is a switch over Kind rather than
    a registry.
  - list-models needs an optional listing capability.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine, internal/cli
  - Uses: internal/config, internal/model

ERROR HANDLING:
  - EnsureModel failures wrap model.ErrModelUnavailable.
  - RunPrompt failures wrap model.ErrGeneration.
  - Unknown backend names wrap model.ErrConfig.

USAGE:
  kind, err := backend.ParseKind(cfg.LLM.Backend)
  b, err := backend.New(kind, cfg)

RELATED FILES:
  - internal/backend/ollama.go
  - internal/backend/local.go
*/

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/model"
)

// Backend turns (model, prompt, options) into generated text plus stats.
type Backend interface {
	// Name is the short backend label written into reports.
	Name() string
	// EnsureModel makes the named model available, pulling or downloading
	// it when absent.
	EnsureModel(ctx context.Context, name string) error
	// RunPrompt sends one prompt. The returned text never echoes the prompt.
	RunPrompt(ctx context.Context, req model.Request) (model.Result, error)
}

// Lister is implemented by backends that can enumerate ready models.
type Lister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Kind enumerates the backend variants.
type Kind int

const (
	// KindServer talks to a model-serving daemon (Ollama) over HTTP.
	KindServer Kind = iota
	// KindLocal loads weights on this machine.
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "ollama"
	case KindLocal:
		return "huggingface"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts ollama|server and hf|huggingface|local.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ollama", "server":
		return KindServer, nil
	case "hf", "huggingface", "local":
		return KindLocal, nil
	}
	return 0, fmt.Errorf("%w: unknown backend %q (want ollama or huggingface)", model.ErrConfig, s)
}

// New builds the backend for kind from cfg.
func New(kind Kind, cfg *config.Config) (Backend, error) {
	switch kind {
	case KindServer:
		return NewOllama(cfg.Ollama), nil
	case KindLocal:
		l, err := NewLocal(cfg.HF, NewRuntime(cfg.HF))
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("%w: unsupported backend kind %s", model.ErrConfig, kind)
}
