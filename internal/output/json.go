/*
PURPOSE:
  Line-oriented JSON writer (NDJSON) used for runs.jsonl.

REQUIREMENTS:
  Implementation-discovered:
  - One object per line so a crash mid-batch leaves every finished line
    parseable with jq.
  - HTML escaping is off; prompts and error strings keep their < > &.

ARCHITECTURE INTEGRATION:
  - Called by: internal/output/index.go

ERROR HANDLING:
  - Returns error on file creation or write failure.

USAGE:
  w, err := output.NewJSONLWriter[model.RunRecord]("runs.jsonl")
  w.Write(rec)
  w.Close()
*/

package output

import (
	"encoding/json"
	"os"
)

// JSONLWriter appends values of type T to a JSON Lines file.
type JSONLWriter[T any] struct {
	file    *os.File
	encoder *json.Encoder
}

// NewJSONLWriter creates path, truncating an existing file.
func NewJSONLWriter[T any](path string) (*JSONLWriter[T], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONLWriter[T]{file: f, encoder: enc}, nil
}

// Write encodes v as one line.
func (w *JSONLWriter[T]) Write(v T) error {
	return w.encoder.Encode(v)
}

// Close closes the underlying file.
func (w *JSONLWriter[T]) Close() error {
	return w.file.Close()
}
