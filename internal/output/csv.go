/*
PURPOSE:
  Writes run records to a CSV file for spreadsheet comparison of models.

REQUIREMENTS:
  Implementation-discovered:
  - Flush after every row so an interrupted batch keeps what finished.
  - Stats are flattened to the common Ollama counters; the full map lives
    in the JSONL index.

ARCHITECTURE INTEGRATION:
  - Called by: internal/output/index.go
  - Consumes: internal/model.RunRecord

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).

USAGE:
  w, err := output.NewCSVWriter("runs.csv")
  w.Write(rec)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion together.

RELATED FILES:
  - internal/model/record.go

MAINTENANCE:
  - Update Write() mapping when RunRecord changes.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/model"
)

var csvHeader = []string{
	"batch_id", "run_uuid", "timestamp", "backend", "model", "prompt_id", "run_id",
	"wall_time_s", "total_duration_s", "prompt_eval_s", "eval_duration_s",
	"prompt_tokens", "gen_tokens", "report_path", "error",
}

// CSVWriter handles writing records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single record to the CSV file.
func (cw *CSVWriter) Write(r model.RunRecord) error {
	record := []string{
		r.BatchID,
		r.RunUUID,
		r.Timestamp.Format(time.RFC3339),
		r.Backend,
		r.Model,
		r.PromptID,
		r.RunID,
		fmt.Sprintf("%.4f", r.WallTime.Seconds()),
		seconds(r.Stats, "total_duration"),
		seconds(r.Stats, "prompt_eval_duration"),
		seconds(r.Stats, "eval_duration"),
		integer(r.Stats, "prompt_eval_count"),
		integer(r.Stats, "eval_count"),
		r.ReportPath,
		r.Error,
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close flushes and closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}

func seconds(s model.Stats, key string) string {
	d, ok := s.Duration(key)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.4f", d.Seconds())
}

func integer(s model.Stats, key string) string {
	n, ok := s.Int(key)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d", n)
}
