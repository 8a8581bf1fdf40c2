package output_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/daryltucker/llm-pipeline/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_FullStats(t *testing.T) {
	sys := "Answer tersely."
	body := output.Render(output.Report{
		Backend: "ollama",
		Model:   "llama3.2:3b",
		RunID:   "capital",
		Prompt:  "Capital of France?",
		System:  &sys,
		Result: model.Result{
			Text: "Paris.",
			Stats: model.Stats{
				"prompt_eval_count":    10,
				"eval_count":           5,
				"prompt_eval_duration": int64(2_000_000),
				"eval_duration":        int64(30_000_000),
				"total_duration":       int64(50_000_000),
			},
			WallTime: 55 * time.Millisecond,
		},
	})

	want := strings.Join([]string{
		"Result: capital",
		"Model: llama3.2:3b",
		"Backend: ollama",
		"",
		"Prompt:",
		"Capital of France?",
		"",
		"System:",
		"Answer tersely.",
		"",
		"Response:",
		"Paris.",
		"",
		"Stats:",
		"- Prompt tokens: 10",
		"- Response tokens: 5",
		"- Total tokens: 15",
		"- Prompt eval time: 2.0 ms",
		"- Generation time: 30.0 ms",
		"- Total backend time: 50.0 ms",
		"- Wall time: 55.0 ms",
	}, "\n") + "\n"
	assert.Equal(t, want, body)
}

func TestRender_MissingStats(t *testing.T) {
	empty := ""
	body := output.Render(output.Report{
		Model:  "org/tiny",
		RunID:  "batch-2",
		Prompt: "p",
		System: &empty,
		Result: model.Result{Text: "r", Stats: model.Stats{"eval_count": 3, "eval_duration": 0}},
	})

	assert.NotContains(t, body, "System:")
	assert.NotContains(t, body, "Backend:")
	assert.Contains(t, body, "- Prompt tokens: n/a\n")
	assert.Contains(t, body, "- Response tokens: 3\n")
	assert.Contains(t, body, "- Total tokens: 3\n")
	assert.Contains(t, body, "- Generation time: n/a\n")
	assert.Contains(t, body, "- Wall time: 0.0 ms\n")
}

func TestRender_NoStatsAtAll(t *testing.T) {
	body := output.Render(output.Report{Model: "m", RunID: "r", Prompt: "p"})
	assert.Contains(t, body, "- Total tokens: n/a\n")
	assert.Contains(t, body, "- Total backend time: n/a\n")
}

func TestSaveResult(t *testing.T) {
	dir := t.TempDir()
	r := output.Report{Model: "org/tiny", RunID: "explain", Prompt: "p", Result: model.Result{Text: "first"}}

	path, err := output.SaveResult(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "org", "tiny", "explain.txt"), path)

	r.Result.Text = "second"
	_, err = output.SaveResult(dir, r)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Response:\nsecond\n")
	assert.NotContains(t, string(data), "first")
}

func TestSaveResult_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := output.SaveResult(blocker, output.Report{Model: "m", RunID: "r"})
	assert.Error(t, err)
}
