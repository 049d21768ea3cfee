package engine

import (
	"fmt"

	"github.com/roach88/wardsync/internal/model"
)

// OutcomeKind classifies the result of one mutation.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeConflict  OutcomeKind = "conflict"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the typed result of dispatching one mutation.
type Outcome struct {
	MutationID string           `json:"mutationId"`
	EntityType model.EntityType `json:"entityType"`
	EntityID   string           `json:"entityId"`
	Action     string           `json:"action"`
	Kind       OutcomeKind      `json:"kind"`
	StatusCode int              `json:"statusCode,omitempty"`

	// Resolved is set for a conflict whose merge was committed.
	Resolved bool `json:"resolved,omitempty"`
	// DeadLettered is set when the mutation was moved to dead letters.
	DeadLettered bool `json:"deadLettered,omitempty"`
	// Removed is set when the mutation no longer sits in the queue.
	Removed bool `json:"removed"`

	Err error `json:"-"`
}

// Result is what Sync reports.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Succeeded int       `json:"succeeded"`
	Conflicts int       `json:"conflicts"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`
}

func summarize(outcomes []Outcome) Result {
	res := Result{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeSucceeded:
			res.Succeeded++
		case OutcomeConflict:
			res.Conflicts++
		default:
			res.Failed++
		}
	}
	res.Success = res.Failed == 0
	res.Message = fmt.Sprintf("Sync completed: %d succeeded, %d conflicts, %d failed",
		res.Succeeded, res.Conflicts, res.Failed)
	return res
}
