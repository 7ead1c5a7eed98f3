package orchestrator

import (
	"time"

	"github.com/wingspanai/qarun/internal/execute"
	"github.com/wingspanai/qarun/internal/prereq"
	"github.com/wingspanai/qarun/internal/workspace"
)

// Status is the terminal state of one run (or of an aggregate).
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusBlocked means a fatal prerequisite stopped the run before any
	// execution attempt.
	StatusBlocked Status = "blocked"
)

// ExitCode maps a status to the process exit code contract.
func (s Status) ExitCode() int {
	switch s {
	case StatusPassed:
		return 0
	case StatusBlocked:
		return 2
	default:
		return 1
	}
}

// worse reports whether s ranks below other (higher exit code loses).
func worse(a, b Status) Status {
	if a.ExitCode() >= b.ExitCode() {
		return a
	}
	return b
}

// RunResult is the terminal aggregate of a single session.
// Matches .qarun/run/sessions/<session>.json schema.
type RunResult struct {
	SessionID    string            `json:"session_id"`
	Workspace    workspace.ID      `json:"workspace,omitempty"`
	Scope        string            `json:"scope,omitempty"`
	Status       Status            `json:"status"`
	Command      string            `json:"command"`
	Attempts     []execute.Attempt `json:"attempts,omitempty"`
	Checks       []prereq.Check    `json:"checks,omitempty"`
	Remediations []string          `json:"remediations,omitempty"`
	ReportPaths  []string          `json:"report_paths,omitempty"`
	Failure      string            `json:"failure,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// Aggregate is the outcome of one orchestrator invocation: a single run, or
// the sequential fan-out of scope "all". Its status is the worst individual
// status observed.
type Aggregate struct {
	Status  Status      `json:"status"`
	Results []RunResult `json:"results"`
}

// LastRun is the persisted summary of the most recent invocation.
// Matches .qarun/run/last-run.json schema.
type LastRun struct {
	Status   Status   `json:"status"`
	Sessions []string `json:"sessions"` // ordered session ids
	Failed   []string `json:"failed"`   // session ids that did not pass
}
