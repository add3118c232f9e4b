package job

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle state of a generation or edit job.
type Status int32

const (
	// StatusIdle indicates a job that has been created but not priced.
	StatusIdle Status = iota

	// StatusAwaitingConfirmation indicates the quote passed the balance check
	// and the job waits for explicit user confirmation.
	StatusAwaitingConfirmation

	// StatusDebiting indicates the debit request is in flight.
	StatusDebiting

	// StatusRunning indicates the generation backend is working.
	StatusRunning

	// StatusSucceeded indicates the result was merged and persisted.
	StatusSucceeded

	// StatusFailed indicates the debit or the backend failed.
	StatusFailed

	// StatusCancelling indicates cancellation was requested and the backend
	// has not yet acknowledged.
	StatusCancelling

	// StatusCancelled indicates the job was cancelled.
	StatusCancelled
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAwaitingConfirmation:
		return "awaiting-confirmation"
	case StatusDebiting:
		return "debiting"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelling:
		return "cancelling"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// ParseStatus converts a string to Status.
func ParseStatus(s string) Status {
	switch s {
	case "idle":
		return StatusIdle
	case "awaiting-confirmation":
		return StatusAwaitingConfirmation
	case "debiting":
		return StatusDebiting
	case "running":
		return StatusRunning
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	case "cancelling":
		return StatusCancelling
	case "cancelled":
		return StatusCancelled
	default:
		return StatusIdle
	}
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CanCancel reports whether a cancel request is meaningful in this status.
func (s Status) CanCancel() bool {
	return s == StatusAwaitingConfirmation || s == StatusRunning
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusIdle:
		return next == StatusAwaitingConfirmation
	case StatusAwaitingConfirmation:
		return next == StatusDebiting || next == StatusCancelled
	case StatusDebiting:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed || next == StatusCancelling
	case StatusCancelling:
		return next == StatusCancelled
	default:
		return false
	}
}
