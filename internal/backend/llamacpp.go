package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/output"
)

// Runtime loads a weights file already on disk into a Session.
type Runtime interface {
	Load(ctx context.Context, weights string) (Session, error)
}

// Session is one loaded model. It stays valid until Close.
type Session interface {
	Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error)
	Close() error
}

// NewRuntime picks the runtime from the hf.runtime binary name: llama-server
// keeps each cached model resident, anything else is run per prompt as
// llama-cli.
func NewRuntime(cfg config.HFConfig) Runtime {
	if strings.HasPrefix(filepath.Base(cfg.Runtime), "llama-server") {
		return NewLlamaServer(cfg)
	}
	return NewLlamaCLI(cfg)
}

// LlamaCLI runs generation through the llama.cpp command line binary.
type LlamaCLI struct {
	Path      string
	GPULayers int
}

// NewLlamaCLI builds the runtime from the hf config section. Offloading is
// enabled for any device other than cpu.
func NewLlamaCLI(cfg config.HFConfig) *LlamaCLI {
	return &LlamaCLI{Path: cfg.Runtime, GPULayers: gpuLayers(cfg)}
}

func gpuLayers(cfg config.HFConfig) int {
	switch {
	case cfg.Device == "cpu" || cfg.Device == "":
		return 0
	case cfg.GPULayers == 0:
		return 99
	}
	return cfg.GPULayers
}

// samplingTemp is the temperature handed to llama.cpp; 0 means greedy.
func samplingTemp(gen GenerationConfig) float64 {
	if !gen.DoSample {
		return 0
	}
	return gen.Temperature
}

// Args builds the command line for one generation.
func (l *LlamaCLI) Args(weights, prompt string, gen GenerationConfig) []string {
	temp := samplingTemp(gen)
	args := []string{
		"-m", weights,
		"-p", prompt,
		"-n", strconv.Itoa(gen.MaxNewTokens),
		"--temp", strconv.FormatFloat(temp, 'f', -1, 64),
		"--top-k", strconv.Itoa(gen.TopK),
		"--top-p", strconv.FormatFloat(gen.TopP, 'f', -1, 64),
		"--min-p", strconv.FormatFloat(gen.MinP, 'f', -1, 64),
		"--repeat-penalty", strconv.FormatFloat(gen.RepetitionPenalty, 'f', -1, 64),
		"-ngl", strconv.Itoa(l.GPULayers),
		"--no-display-prompt",
		"-no-cnv",
	}
	if gen.Seed != nil {
		args = append(args, "--seed", strconv.FormatInt(*gen.Seed, 10))
	}
	return args
}

// Load implements Runtime. Nothing stays in memory: every Generate starts
// a new process that reads the weights again.
func (l *LlamaCLI) Load(_ context.Context, weights string) (Session, error) {
	return &cliSession{cli: l, weights: weights}, nil
}

type cliSession struct {
	cli     *LlamaCLI
	weights string
}

func (s *cliSession) Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	return s.cli.Generate(ctx, s.weights, prompt, gen)
}

func (s *cliSession) Close() error { return nil }

// Generate runs one llama-cli process for prompt.
func (l *LlamaCLI) Generate(ctx context.Context, weights, prompt string, gen GenerationConfig) (string, error) {
	cmd := exec.CommandContext(ctx, l.Path, l.Args(weights, prompt, gen)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	output.Logger.Debug("Starting runtime", "path", l.Path, "weights", weights)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", l.Path, err, tail(stderr.String(), 512))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
