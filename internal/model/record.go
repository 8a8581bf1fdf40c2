package model

import "time"

// RunRecord is one line of the run index (runs.jsonl / runs.csv). Failed
// runs are recorded too, with Error set.
type RunRecord struct {
	BatchID    string        `json:"batch_id"`
	RunUUID    string        `json:"run_uuid"`
	Timestamp  time.Time     `json:"timestamp"`
	Backend    string        `json:"backend"`
	Model      string        `json:"model"`
	PromptID   string        `json:"prompt_id"`
	RunID      string        `json:"run_id"`
	ReportPath string        `json:"report_path,omitempty"`
	WallTime   time.Duration `json:"wall_time_ns"`
	Stats      Stats         `json:"stats,omitempty"`
	Error      string        `json:"error,omitempty"`
}
