package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunAborted     RunStatus = "aborted"
)

// RunInfo describes one batch invocation. It doubles as the batch stats.
type RunInfo struct {
	ID          uuid.UUID `json:"id"`
	Root        string    `json:"root"`
	Status      RunStatus `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Total       int       `json:"total_items"`
	StartCursor int       `json:"start_cursor"`
	EndCursor   int       `json:"end_cursor"`
	Processed   int       `json:"processed"`
	Scanned     int       `json:"scanned"`
	Reused      int       `json:"reused"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Reported    int       `json:"reported"`
}

// Count folds one item outcome into the totals.
func (r *RunInfo) Count(o ItemOutcome) {
	r.Processed++
	switch o.Outcome {
	case OutcomeScanned:
		r.Scanned++
	case OutcomeReused:
		r.Reused++
	case OutcomeNoInput:
		r.Skipped++
	case OutcomeScanFailed, OutcomeScannerMissing:
		r.Failed++
	}
	if o.ReportPath != "" {
		r.Reported++
	}
}
