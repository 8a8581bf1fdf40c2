/*
PURPOSE:
  Defines the core data structures passed between the runner, the backends
  and the output writers.

REQUIREMENTS:
  User-specified:
  - A run produces generated text, backend statistics and a wall-clock duration.
  - Statistics are open-ended and differ per backend.

  Implementation-discovered:
  - Ollama reports counts and nanosecond durations as JSON numbers, which may
    arrive as float64, json.Number or int depending on the decoder.
  - Writers must tolerate missing stats keys.

ARCHITECTURE INTEGRATION:
  - Used by: internal/backend, internal/engine, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs). See errors.go for the error taxonomy.

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Duration for durations.

USAGE:
  res := model.Result{Text: "...", Stats: model.Stats{"eval_count": 2}}
  n, ok := res.Stats.Int("eval_count")

SELF-HEALING INSTRUCTIONS:
  - If a backend starts reporting a new numeric type, extend Stats.Int.

RELATED FILES:
  - internal/output/report.go
  - internal/backend/backend.go

MAINTENANCE:
  - Update when adding new request settings.
*/

package model

import (
	"encoding/json"
	"math"
	"time"
)

// Request is a single prompt invocation after model and prompt settings
// have been merged.
type Request struct {
	Model       string
	Prompt      string
	System      *string
	Temperature *float64
	Options     map[string]any
	Stream      bool
}

// SystemText returns the system message or "" when unset.
func (r Request) SystemText() string {
	if r.System == nil {
		return ""
	}
	return *r.System
}

// Result represents the outcome of a single backend call.
type Result struct {
	Text     string        `json:"text"`
	Stats    Stats         `json:"stats"`
	WallTime time.Duration `json:"wall_time"`
}

// Stats is the backend-specific statistics map (token counts, durations...).
type Stats map[string]any

// Int reads a numeric stat. It returns false when the key is absent or not
// a number.
func (s Stats) Int(key string) (int64, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// Duration reads a stat holding nanoseconds.
func (s Stats) Duration(key string) (time.Duration, bool) {
	n, ok := s.Int(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n), true
}
