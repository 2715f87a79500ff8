package domain

import "time"

// ResultMeta is engine-defined metadata attached to a StepResult.
type ResultMeta struct {
	// Attempts is the total number of invocation attempts, including retries.
	Attempts int `json:"attempts"`

	// FromCache reports whether the result was served from a live cache entry.
	FromCache bool `json:"fromCache"`

	// SkipReason explains a skipped step: explicit skip, stop on first
	// failure, or cancellation. Never empty for a skipped step.
	SkipReason string `json:"skipReason,omitempty"`
}

// StepResult is the immutable record of one step's outcome.
type StepResult struct {
	StepID     string     `json:"id"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	DurationMs int64      `json:"durationMs"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"errorKind,omitempty"`
	Meta       ResultMeta `json:"metadata"`
}

// WaveResult groups the results produced by one wave, in completion order.
type WaveResult struct {
	Index int          `json:"index"`
	Steps []StepResult `json:"steps"`
}

// Counts aggregates step outcomes by status.
type Counts struct {
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RunSummary is the single artifact produced by a run. It is populated
// incrementally by the scheduler while the run is in flight and read-only
// once finalized. Overall status is success iff no step failed.
type RunSummary struct {
	RunID       string       `json:"runId"`
	Status      Status       `json:"status"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
	DurationMs  int64        `json:"durationMs"`
	Waves       []WaveResult `json:"waves"`
	Counts      Counts       `json:"counts"`
}
