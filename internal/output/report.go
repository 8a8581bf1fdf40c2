/*
PURPOSE:
  Renders one run as a human-readable plain-text report at
  {output_dir}/{model}/{run_id}.txt.

REQUIREMENTS:
  User-specified:
  - Fixed section order: Result / Model / Prompt / System? / Response / Stats.
  - Absent stats render as "n/a".

  Implementation-discovered:
  - Model names with "/" (Hugging Face repo ids) become nested directories.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Consumes: internal/model.Result

ERROR HANDLING:
  - Returns error on directory creation or write failure.

IMPLEMENTATION RULES:
  - Overwrite an existing report with the same run id.

USAGE:
  path, err := output.SaveResult("results", output.Report{...})

SELF-HEALING INSTRUCTIONS:
  - If new stats should be shown, extend statsLines.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Keep the section order stable, downstream scripts grep it.
*/

package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/model"
)

const notAvailable = "n/a"

// Report is everything needed to render one run.
type Report struct {
	Backend string
	Model   string
	RunID   string
	Prompt  string
	System  *string
	Result  model.Result
}

// SaveResult writes the report and returns its path.
func SaveResult(outputDir string, r Report) (string, error) {
	modelDir := filepath.Join(outputDir, filepath.FromSlash(r.Model))
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory %s: %w", modelDir, err)
	}

	path := filepath.Join(modelDir, r.RunID+".txt")
	if err := os.WriteFile(path, []byte(Render(r)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}

// Render formats the report body.
func Render(r Report) string {
	lines := []string{
		"Result: " + r.RunID,
		"Model: " + r.Model,
	}
	if r.Backend != "" {
		lines = append(lines, "Backend: "+r.Backend)
	}
	lines = append(lines, "", "Prompt:", r.Prompt)

	if r.System != nil && *r.System != "" {
		lines = append(lines, "", "System:", *r.System)
	}

	lines = append(lines, "", "Response:", r.Result.Text, "", "Stats:")
	lines = append(lines, statsLines(r.Result)...)

	return strings.Join(lines, "\n") + "\n"
}

func statsLines(res model.Result) []string {
	s := res.Stats

	promptTokens, hasPrompt := s.Int("prompt_eval_count")
	evalTokens, hasEval := s.Int("eval_count")
	total := notAvailable
	if hasPrompt || hasEval {
		total = fmt.Sprintf("%d", promptTokens+evalTokens)
	}

	return []string{
		"- Prompt tokens: " + count(s, "prompt_eval_count"),
		"- Response tokens: " + count(s, "eval_count"),
		"- Total tokens: " + total,
		"- Prompt eval time: " + millis(s, "prompt_eval_duration"),
		"- Generation time: " + millis(s, "eval_duration"),
		"- Total backend time: " + millis(s, "total_duration"),
		fmt.Sprintf("- Wall time: %.1f ms", float64(res.WallTime)/float64(time.Millisecond)),
	}
}

func count(s model.Stats, key string) string {
	n, ok := s.Int(key)
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%d", n)
}

// millis renders a nanosecond stat; zero counts as missing.
func millis(s model.Stats, key string) string {
	d, ok := s.Duration(key)
	if !ok || d == 0 {
		return notAvailable
	}
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}
