/*
PURPOSE:
  High-level runner that drives a batch.
  Loops through Models -> Prompts -> Prompt texts and executes each run.

REQUIREMENTS:
  User-specified:
  - Run every declared prompt against every declared model, in order.
  - Optional substring filters on model name and prompt id.
  - One failing model or prompt must not abort the batch.

  Implementation-discovered:
  - Failed runs are still written to the run index so a batch can be
    re-run selectively from runs.csv.
  - Ctrl-C cancels the context; the loop stops at the next unit.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/backend, internal/prompts, internal/output

ERROR HANDLING:
  - Logs errors but continues (resilience). No retries.
  - Only context cancellation and index setup failures are returned.

IMPLEMENTATION RULES:
  - For each Model: EnsureModel, skip the model on failure.
  - For each Prompt id: Resolve, Merge, load texts, RunPrompt, SaveResult.

USAGE:
  summary, err := engine.Run(ctx, cfg, b, engine.Options{OutputDir: "results"})

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/backend/backend.go
  - internal/prompts/registry.go

MAINTENANCE:
  - Update iteration logic if parallelism is introduced.
*/

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/backend"
	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"github.com/daryltucker/llm-pipeline/internal/prompts"
)

// Options are the per-invocation knobs of a batch.
type Options struct {
	OutputDir    string
	Stream       bool
	FilterModel  string
	FilterPrompt string
	Render       bool
	Stdout       io.Writer
}

// Recorder receives one record per attempted run.
type Recorder interface {
	Record(rec model.RunRecord) error
}

// Summary counts what a batch did.
type Summary struct {
	ModelsRun     int
	ModelsSkipped int
	RunsOK        int
	RunsFailed    int
	PromptsFailed int
}

// Runner executes a batch sequentially.
type Runner struct {
	Backend backend.Backend
	Config  *config.Config
	Options Options
	Index   Recorder
	Console *output.Console
}

// Run executes the full batch described by cfg using b.
func Run(ctx context.Context, cfg *config.Config, b backend.Backend, opts Options) (Summary, error) {
	r := &Runner{Backend: b, Config: cfg, Options: opts}
	if opts.Stdout != nil {
		r.Console = output.NewConsole(opts.Stdout, opts.Render)
	}

	if cfg.Output.Index {
		ix, err := output.NewIndex(opts.OutputDir)
		if err != nil {
			return Summary{}, err
		}
		defer ix.Close()
		r.Index = ix
		output.Logger.Info("Run index enabled", "batch", ix.BatchID(), "dir", opts.OutputDir)
	}

	return r.Run(ctx)
}

// Run iterates models in declaration order.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	for _, m := range r.Config.Models {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.Options.FilterModel != "" && !strings.Contains(m.Name, r.Options.FilterModel) {
			continue
		}
		r.runModel(ctx, m, &sum)
	}

	output.Logger.Info("Batch complete",
		"models", sum.ModelsRun,
		"models_skipped", sum.ModelsSkipped,
		"runs_ok", sum.RunsOK,
		"runs_failed", sum.RunsFailed,
		"prompts_failed", sum.PromptsFailed,
	)
	return sum, ctx.Err()
}

func (r *Runner) runModel(ctx context.Context, m config.Model, sum *Summary) {
	log := output.Logger.With("model", m.Name, "backend", r.Backend.Name())

	if err := r.Backend.EnsureModel(ctx, m.Name); err != nil {
		log.Error("Failed to prepare model", "error", err)
		sum.ModelsSkipped++
		return
	}
	sum.ModelsRun++

	log.Info("Testing Model", "prompts", len(m.Prompts))
	if r.Console != nil {
		r.Console.ModelHeader(m.Name)
	}

	for _, promptID := range m.Prompts {
		if ctx.Err() != nil {
			return
		}
		if r.Options.FilterPrompt != "" && !strings.Contains(promptID, r.Options.FilterPrompt) {
			continue
		}

		def, err := prompts.Resolve(promptID, r.Config.Prompts)
		if err != nil {
			log.Error("Skipping prompt", "prompt", promptID, "error", err)
			sum.PromptsFailed++
			continue
		}

		settings := prompts.Merge(m, def)
		log.Info("Running prompt", "prompt", promptID, "options", settings.Options)

		texts, err := prompts.Texts(def, r.Config.BaseDir())
		if err != nil {
			log.Error("Skipping prompt", "prompt", promptID, "error", err)
			sum.PromptsFailed++
			continue
		}

		for i, text := range texts {
			runID := prompts.RunID(promptID, i+1, len(texts))
			if r.execute(ctx, m.Name, promptID, runID, text, settings) {
				sum.RunsOK++
			} else {
				sum.RunsFailed++
			}
		}
	}
}

// execute performs one backend call and persists it. It reports success.
func (r *Runner) execute(ctx context.Context, modelName, promptID, runID, text string, s prompts.Settings) bool {
	log := output.Logger.With("model", modelName, "prompt", promptID, "run", runID)
	if r.Console != nil {
		r.Console.RunHeader(runID)
	}

	rec := model.RunRecord{
		Timestamp: time.Now(),
		Backend:   r.Backend.Name(),
		Model:     modelName,
		PromptID:  promptID,
		RunID:     runID,
	}

	res, err := r.Backend.RunPrompt(ctx, model.Request{
		Model:       modelName,
		Prompt:      text,
		System:      s.System,
		Temperature: s.Temperature,
		Options:     s.Options,
		Stream:      r.Options.Stream,
	})
	if err != nil {
		log.Error("Error running prompt", "error", err)
		rec.Error = err.Error()
		r.record(log, rec)
		return false
	}

	if r.Console != nil {
		r.Console.Response(res.Text)
	}

	path, err := output.SaveResult(r.Options.OutputDir, output.Report{
		Backend: r.Backend.Name(),
		Model:   modelName,
		RunID:   runID,
		Prompt:  text,
		System:  s.System,
		Result:  res,
	})
	rec.WallTime = res.WallTime
	rec.Stats = res.Stats
	if err != nil {
		log.Error("Failed to save result", "error", err)
		rec.Error = err.Error()
		r.record(log, rec)
		return false
	}
	rec.ReportPath = path

	log.Info("Inference Success", "wall_time", res.WallTime.Round(time.Millisecond), "report", path)
	r.record(log, rec)
	return true
}

func (r *Runner) record(log *slog.Logger, rec model.RunRecord) {
	if r.Index == nil {
		return
	}
	if err := r.Index.Record(rec); err != nil {
		log.Error("Failed to write run index", "error", fmt.Errorf("record %s: %w", rec.RunID, err))
	}
}
