package models

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusError    RunStatus = "error"
)

// SourceSummary counts what one input source contributed to a run.
type SourceSummary struct {
	Table      TableKind `json:"table"`
	Path       string    `json:"path"`
	Rows       int       `json:"rows"`
	Issues     int       `json:"issues"`
	Unreadable bool      `json:"unreadable,omitempty"`
}

// RunReport is the structured account of one reconciliation pass:
// what was read, what was produced and everything that went wrong.
type RunReport struct {
	ID               string          `json:"id"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       time.Time       `json:"finishedAt,omitempty"`
	Status           RunStatus       `json:"status"`
	Sources          []SourceSummary `json:"sources"`
	RecordCount      int             `json:"recordCount"`
	ValidationIssues []Issue         `json:"validationIssues"`
	ReconcileIssues  []Issue         `json:"reconcileIssues"`
	AggregateIssues  []Issue         `json:"aggregateIssues"`
	Error            string          `json:"error,omitempty"`
}

// IssueCount returns the total number of collected issues.
func (r *RunReport) IssueCount() int {
	return len(r.ValidationIssues) + len(r.ReconcileIssues) + len(r.AggregateIssues)
}
