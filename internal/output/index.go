package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daryltucker/llm-pipeline/internal/model"
	"github.com/google/uuid"
)

// Index file names under the output directory.
const (
	IndexJSONL = "runs.jsonl"
	IndexCSV   = "runs.csv"
)

// Index records every attempted run of one batch to runs.jsonl and runs.csv.
type Index struct {
	batchID string
	json    *JSONLWriter[model.RunRecord]
	csv     *CSVWriter
}

// NewIndex creates (or truncates) the index files in dir.
func NewIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	jsonPath := filepath.Join(dir, IndexJSONL)
	jw, err := NewJSONLWriter[model.RunRecord](jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
	}

	csvPath := filepath.Join(dir, IndexCSV)
	cw, err := NewCSVWriter(csvPath)
	if err != nil {
		jw.Close()
		return nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
	}

	return &Index{
		batchID: uuid.NewString(),
		json:    jw,
		csv:     cw,
	}, nil
}

// BatchID identifies this invocation in every record.
func (ix *Index) BatchID() string {
	return ix.batchID
}

// Record stamps rec with the batch id, a fresh run uuid and a timestamp (if
// unset) and appends it to both files.
func (ix *Index) Record(rec model.RunRecord) error {
	rec.BatchID = ix.batchID
	rec.RunUUID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	return errors.Join(ix.json.Write(rec), ix.csv.Write(rec))
}

// Close closes both files.
func (ix *Index) Close() error {
	return errors.Join(ix.json.Close(), ix.csv.Close())
}
