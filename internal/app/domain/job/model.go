// Package job defines the generation/edit job domain model.
package job

import (
	"time"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/ledger"
)

// Kind distinguishes full-app generations from incremental edits.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindEdit       Kind = "edit"
)

// Job tracks one generation or edit request from submission to a terminal
// state. ProgressLog is append-only and ordered; it is never truncated or
// reordered within one job.
type Job struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	ProjectID       string           `json:"project_id,omitempty"`
	Kind            Kind             `json:"kind"`
	Status          Status           `json:"status"`
	Prompt          string           `json:"prompt"`
	Quote           ledger.CostQuote `json:"quote"`
	ProgressLog     []string         `json:"progress_log"`
	CancelRequested bool             `json:"cancel_requested"`
	RefundIssued    bool             `json:"refund_issued"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       time.Time        `json:"started_at,omitempty"`
	FinishedAt      time.Time        `json:"finished_at,omitempty"`
}

// Clone returns a copy safe to hand across store boundaries.
func (j Job) Clone() Job {
	out := j
	if j.ProgressLog != nil {
		out.ProgressLog = make([]string, len(j.ProgressLog))
		copy(out.ProgressLog, j.ProgressLog)
	}
	return out
}
