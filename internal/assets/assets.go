// Package assets embeds the starter files written by `llm-pipeline init`.
package assets

import "embed"

// Examples holds examples/pipeline.toml and examples/prompts.txt.
//
//go:embed examples
var Examples embed.FS
