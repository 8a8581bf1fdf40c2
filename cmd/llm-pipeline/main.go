/*
PURPOSE:
  llm-pipeline binary. Hands control to the cobra root command.

REQUIREMENTS:
  User-specified:
  - Exit code 1 when the batch cannot start (missing config, no models,
    unknown backend). Failures of single runs still exit 0.

  Implementation-discovered:
  - Ctrl-C exits 130 after the current unit, like a shell would report.

ARCHITECTURE INTEGRATION:
  - Calls: internal/cli.Execute()

USAGE:
  go build -o llm-pipeline ./cmd/llm-pipeline
  ./llm-pipeline run pipeline.toml

RELATED FILES:
  - internal/cli/root.go
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/daryltucker/llm-pipeline/internal/cli"
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	os.Exit(1)
}
