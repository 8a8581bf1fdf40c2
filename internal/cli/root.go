/*
PURPOSE:
  Defines the root Cobra command for the llm-pipeline CLI.
  Handles global flags, logging setup and command initialization.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Ctrl-C should cancel in-flight backend calls, so commands receive a
    signal-aware context.
  - A .env file in the working directory is loaded before any command.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/llm-pipeline/main.go
  - Calls: Child commands (run, list-models, init, edgar)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root is usually empty or helps.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/llm-pipeline/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"github.com/spf13/cobra"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "llm-pipeline",
		Short: "Run shared prompts across multiple LLM backends",
		Long: `Runs the prompts declared in a TOML (or YAML) config against every declared model,
using either an Ollama server or locally downloaded Hugging Face weights, and writes
one report per run. Use 'run --help' for batch options.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := output.Configure(logLevel, logFormat, cmd.ErrOrStderr()); err != nil {
				return err
			}
			if err := config.LoadDotEnv(".env"); err != nil {
				output.Logger.Warn("Failed to load .env", "error", err)
			}
			return nil
		},
	}
)

// Execute executes the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (alternative to the positional argument)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

// loadConfig loads path (or the built-in defaults when path is empty) and
// applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}
