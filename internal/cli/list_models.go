/*
PURPOSE:
  Defines the 'list-models' subcommand.
  Helps debug connectivity and model discovery.

REQUIREMENTS:
  User-specified:
  - List available models.

  Implementation-discovered:
  - Useful validation step before a full run.
  - For the Hugging Face backend this lists the download cache.

ARCHITECTURE INTEGRATION:
  - Calls: backend.Lister.ListModels()

ERROR HANDLING:
  - Returns the listing error (exit 1), e.g. when the URL is wrong.

IMPLEMENTATION RULES:
  - Simple output to stdout.

USAGE:
  llm-pipeline list-models --server-url http://ollama-1:11434

RELATED FILES:
  - internal/backend/ollama.go
  - internal/backend/local.go
*/

package cli

import (
	"fmt"

	"github.com/daryltucker/llm-pipeline/internal/backend"
	"github.com/spf13/cobra"
)

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List models available to the selected backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		applyOverrides(cfg)

		kind, err := backend.ParseKind(cfg.LLM.Backend)
		if err != nil {
			return err
		}
		b, err := backend.New(kind, cfg)
		if err != nil {
			return err
		}
		lister, ok := b.(backend.Lister)
		if !ok {
			return fmt.Errorf("backend %s cannot list models", b.Name())
		}

		if kind == backend.KindServer {
			fmt.Fprintf(cmd.OutOrStdout(), "Querying %s...\n", cfg.Ollama.Host)
		}
		models, err := lister.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listModelsCmd)
	listModelsCmd.Flags().StringVar(&backendOverride, "backend", "", "Backend to query (ollama or huggingface)")
	listModelsCmd.Flags().StringVar(&serverURLOverride, "server-url", "", "Ollama server URL")
}
