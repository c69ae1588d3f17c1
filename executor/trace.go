package executor

import (
	"time"

	"github.com/mailru/easyjson"
)

// Status is the terminal state of one recorded action.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusSkipped   Status = "skipped"
)

// RunStatus is the aggregate state of a whole execution. Completed
// means every action was recorded; Aborted means execution stopped
// early due to a fatal failure, a lost connection or cancellation.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// Result records the outcome of one action.
type Result struct {
	ActionID int                 `json:"actionId"`
	Kind     Kind                `json:"kind"`
	Status   Status              `json:"status"`
	Err      error               `json:"-"`
	Error    string              `json:"error,omitempty"`
	Attempts int                 `json:"attempts"`
	Duration time.Duration       `json:"durationMs"`
	Output   easyjson.RawMessage `json:"output,omitempty"`
}

// Trace is the ordered record of outcomes for an executed action list,
// index-aligned with the input up to the point of completion or abort.
type Trace struct {
	RunID   string    `json:"runId"`
	Status  RunStatus `json:"status"`
	Reason  string    `json:"reason,omitempty"`
	Results []Result  `json:"results"`
}

// Failed reports whether any recorded action ended other than
// Succeeded.
func (t *Trace) Failed() bool {
	for _, r := range t.Results {
		if r.Status != StatusSucceeded {
			return true
		}
	}
	return false
}

// ExitCode maps the trace to a process exit code: 0 for a Completed
// run, non-zero for an Aborted one. In strict mode any non-Succeeded
// entry is also non-zero.
func (t *Trace) ExitCode(strict bool) int {
	if t.Status != RunCompleted {
		return 1
	}
	if strict && t.Failed() {
		return 1
	}
	return 0
}
