// Package runtime implements the scenario interpreter: the step executor
// loop, action handlers, control flow, and run artifacts (trace, manifest).
package runtime

import (
	"time"

	"github.com/ormasoftchile/gaze/pkg/schema"
)

// Status is a recorded step outcome.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult records the outcome of one top-level step. Steps nested inside
// if/try/each/repeat execute but never get their own result entry; their
// failures surface against the enclosing top-level index.
type StepResult struct {
	Index      int         `json:"index"`
	Kind       schema.Kind `json:"kind"`
	Status     Status      `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
}

// ExecutionReport is the terminal outcome of a scenario run.
type ExecutionReport struct {
	Scenario   string       `json:"scenario"`
	Success    bool         `json:"success"`
	Steps      []StepResult `json:"steps"`
	DurationMs int64        `json:"duration_ms"`
	// Error is set only for fatal, non-step failures (browser session lost,
	// unusable document); step failures live in Steps.
	Error string `json:"error,omitempty"`
}

// TraceEvent wraps a StepResult for JSONL trace output with extra metadata.
type TraceEvent struct {
	Type      string      `json:"type"` // step_result
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Result    *StepResult `json:"result"`
}

// RunManifest records the metadata for one scenario run. Written as run.yaml
// after the run completes (or fails).
type RunManifest struct {
	RunID        string            `yaml:"run_id"             json:"run_id"`
	Scenario     string            `yaml:"scenario"           json:"scenario"`
	ScenarioPath string            `yaml:"scenario_path,omitempty" json:"scenario_path,omitempty"`
	StartedAt    string            `yaml:"started_at"         json:"started_at"`
	EndedAt      string            `yaml:"ended_at"           json:"ended_at"`
	Success      bool              `yaml:"success"            json:"success"`
	Error        string            `yaml:"error,omitempty"    json:"error,omitempty"`
	Vars         map[string]string `yaml:"vars,omitempty"     json:"vars,omitempty"`
	StepsSummary StepsSummary      `yaml:"steps_summary"      json:"steps_summary"`
}

// StepsSummary counts recorded step results by status.
type StepsSummary struct {
	Total   int `yaml:"total"   json:"total"`
	Passed  int `yaml:"passed"  json:"passed"`
	Failed  int `yaml:"failed"  json:"failed"`
	Skipped int `yaml:"skipped" json:"skipped"`
}
