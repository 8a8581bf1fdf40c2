/*
PURPOSE:
  In-process backend: downloads Hugging Face weights into a local cache,
  keeps loaded models in a bounded LRU, and generates through a Runtime.

REQUIREMENTS:
  User-specified:
  - Load each model on first use and reuse it afterwards.
  - Layer user options over the model's built-in generation defaults,
    ignoring (and logging) unknown keys, and record what was overridden.
  - Optional seed option applied process-wide before generation.

  Implementation-discovered:
  - The cache is bounded (cache_size); evicting an entry closes its
    runtime session, which stops a resident llama-server process.
  - Weights are GGUF files run by llama.cpp.
  - With the llama-cli runtime nothing is resident: each prompt reloads
    the weights and the cache only saves the download and lookup.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine, internal/cli (list-models)
  - Uses: internal/backend/hub.go, genconfig.go, llamacpp.go

ERROR HANDLING:
  - Load failures wrap model.ErrModelUnavailable.
  - Option or runtime failures wrap model.ErrGeneration.

USAGE:
  l, err := backend.NewLocal(cfg.HF, backend.NewRuntime(cfg.HF))
  defer l.Close()

RELATED FILES:
  - internal/backend/backend.go
*/

package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/daryltucker/llm-pipeline/internal/output"
)

type loadedModel struct {
	ref      ModelRef
	weights  string
	defaults map[string]any
	session  Session
}

// Local is the in-process backend.
type Local struct {
	hub     *Hub
	runtime Runtime
	device  string
	cache   *lru.Cache[string, *loadedModel]

	// seed is the process-wide seed, set by the last run that passed one.
	seed *int64
}

// NewLocal builds the backend. cfg.CacheSize below 1 means 1.
func NewLocal(cfg config.HFConfig, rt Runtime) (*Local, error) {
	size := cfg.CacheSize
	if size < 1 {
		size = 1
	}
	cache, err := lru.NewWithEvict[string, *loadedModel](size, func(name string, m *loadedModel) {
		output.Logger.Info("Evicting model from cache", "model", name)
		if err := m.session.Close(); err != nil {
			output.Logger.Warn("Failed to unload model", "model", name, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	device := cfg.Device
	if device == "" {
		device = "cpu"
	}

	return &Local{
		hub: &Hub{
			Endpoint: cfg.Endpoint,
			Token:    cfg.Token,
			CacheDir: cfg.CacheDir,
			Client:   &http.Client{},
		},
		runtime: rt,
		device:  device,
		cache:   cache,
	}, nil
}

// Close unloads every cached model.
func (l *Local) Close() error {
	l.cache.Purge()
	return nil
}

// Name implements Backend.
func (l *Local) Name() string {
	return KindLocal.String()
}

// EnsureModel downloads and caches the model.
func (l *Local) EnsureModel(ctx context.Context, name string) error {
	_, err := l.load(ctx, name)
	return err
}

// ListModels lists repos present in the download cache.
func (l *Local) ListModels(context.Context) ([]string, error) {
	return l.hub.CachedRepos()
}

func (l *Local) load(ctx context.Context, name string) (*loadedModel, error) {
	if m, ok := l.cache.Get(name); ok {
		return m, nil
	}

	ref, err := ParseModelRef(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelUnavailable, err)
	}
	file, err := l.hub.ResolveWeights(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelUnavailable, err)
	}
	weights, err := l.hub.Download(ctx, ref.Repo, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrModelUnavailable, err)
	}

	defaults := map[string]any{}
	found, err := l.hub.ReadOptionalJSON(ctx, ref.Repo, "generation_config.json", &defaults)
	if err != nil {
		output.Logger.Warn("Ignoring model generation defaults", "model", name, "error", err)
		defaults = map[string]any{}
	} else if !found {
		output.Logger.Debug("Model has no generation_config.json", "model", name)
	}

	session, err := l.runtime.Load(ctx, weights)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", model.ErrModelUnavailable, weights, err)
	}

	m := &loadedModel{ref: ref, weights: weights, defaults: defaults, session: session}
	l.cache.Add(name, m)
	output.Logger.Info("Model loaded", "model", name, "weights", weights, "device", l.device)
	return m, nil
}

// RunPrompt implements Backend.
func (l *Local) RunPrompt(ctx context.Context, r model.Request) (model.Result, error) {
	m, err := l.load(ctx, r.Model)
	if err != nil {
		return model.Result{}, err
	}

	gen, ignored, err := BuildGenerationConfig(m.defaults, r.Temperature, r.Options)
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrGeneration, err)
	}
	for _, key := range ignored {
		output.Logger.Warn("Ignoring unknown generation option", "model", r.Model, "option", key)
	}
	if gen.Seed != nil {
		l.seed = gen.Seed
	}
	gen.Seed = l.seed
	if r.Temperature != nil && !gen.DoSample {
		output.Logger.Warn("temperature is set but do_sample is false; decoding greedily", "model", r.Model)
	}

	prompt := r.Prompt
	if sys := r.SystemText(); sys != "" {
		prompt = sys + "\n\n" + r.Prompt
	}

	start := time.Now()
	text, err := m.session.Generate(ctx, prompt, gen)
	wall := time.Since(start)
	if err != nil {
		return model.Result{}, fmt.Errorf("%w: %v", model.ErrGeneration, err)
	}

	stats := model.Stats{
		"backend":        l.Name(),
		"model":          r.Model,
		"device":         l.device,
		"weights":        m.weights,
		"overridden":     gen.Overridden,
		"defaulted":      gen.Defaulted(),
		"max_new_tokens": gen.MaxNewTokens,
		"response_chars": len(text),
	}
	if gen.Seed != nil {
		stats["seed"] = *gen.Seed
	}

	return model.Result{Text: text, Stats: stats, WallTime: wall}, nil
}
