/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes every declared prompt against every declared model.

REQUIREMENTS:
  User-specified:
  - Positional config path.
  - Flags for backend override, server URL, output directory, forced
    streaming, and substring filters on model name and prompt id.
  - Exit 1 if the config is missing or declares no models; per-run
    failures are logged and the process exits 0.

  Implementation-discovered:
  - Flag > environment > config file > defaults.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config, internal/backend

ERROR HANDLING:
  - Returns error if config load, validation or backend setup fails.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Validate -> Backend -> Engine.Run.

USAGE:
  llm-pipeline run pipeline.toml --filter-model llama

SELF-HEALING INSTRUCTIONS:
  - Check flag names match Config struct fields generally.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"fmt"
	"io"

	"github.com/daryltucker/llm-pipeline/internal/backend"
	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/engine"
	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"github.com/spf13/cobra"
)

var (
	backendOverride   string
	serverURLOverride string
	outputOverride    string
	forceStream       bool
	filterModel       string
	filterPrompt      string
	renderMarkdown    bool
)

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Run the prompts of a config across its models",
	Long: `Runs each declared model's prompts in order:
1. Prepare: the model is pulled (Ollama) or downloaded (Hugging Face) if missing.
2. Resolve: each prompt id is looked up in [prompts] and merged with the model settings.
3. Generate: every prompt text is sent to the backend.
4. Persist: a report is written to <output-dir>/<model>/<run-id>.txt.

A failing model or prompt is logged and skipped; the batch continues.`,
	Example: `  # Run a config against the local Ollama server
  llm-pipeline run pipeline.toml

  # Use the Hugging Face backend and a different output directory
  llm-pipeline run pipeline.toml --backend huggingface -o ./out

  # Only llama models, only prompts whose id contains "mda", streamed
  llm-pipeline run pipeline.toml --filter-model llama --filter-prompt mda --stream`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("%w: a config path is required", model.ErrConfig)
		}

		// 1. Load Config
		cfg, err := loadConfig(path)
		if err != nil {
			return err
		}

		// 2. Overrides
		applyOverrides(cfg)

		if err := cfg.Validate(); err != nil {
			return err
		}
		for _, ref := range cfg.DanglingPrompts() {
			output.Logger.Warn("Prompt referenced but not declared in [prompts]", "ref", ref)
		}

		// 3. Backend
		kind, err := backend.ParseKind(cfg.LLM.Backend)
		if err != nil {
			return err
		}
		b, err := backend.New(kind, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize backend %q: %w", cfg.LLM.Backend, err)
		}

		// 4. Execution
		if c, ok := b.(io.Closer); ok {
			defer c.Close()
		}

		_, err = engine.Run(cmd.Context(), cfg, b, engine.Options{
			OutputDir:    cfg.Output.Dir,
			Stream:       cfg.Ollama.Stream,
			FilterModel:  filterModel,
			FilterPrompt: filterPrompt,
			Render:       renderMarkdown,
			Stdout:       cmd.OutOrStdout(),
		})
		if err != nil && cmd.Context().Err() != nil {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	},
}

func applyOverrides(cfg *config.Config) {
	if backendOverride != "" {
		cfg.LLM.Backend = backendOverride
	}
	if serverURLOverride != "" {
		cfg.Ollama.Host = config.NormalizeHost(serverURLOverride)
	}
	if outputOverride != "" {
		cfg.Output.Dir = outputOverride
	}
	if forceStream {
		cfg.Ollama.Stream = true
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&backendOverride, "backend", "", "Override LLM backend (ollama or huggingface)")
	runCmd.Flags().StringVar(&serverURLOverride, "server-url", "", "Ollama server URL (ollama backend only)")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for reports")
	runCmd.Flags().BoolVar(&forceStream, "stream", false, "Force streaming mode")
	runCmd.Flags().StringVar(&filterModel, "filter-model", "", "Run only models containing this string")
	runCmd.Flags().StringVar(&filterPrompt, "filter-prompt", "", "Run only prompts whose id contains this string")
	runCmd.Flags().BoolVar(&renderMarkdown, "render", false, "Render responses as markdown in the terminal")
}
