package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxAttempts is the default delivery budget per mutation.
const DefaultMaxAttempts = 10

// attemptQuota decides when a repeatedly failing mutation has used up its
// delivery budget and must leave the queue.
//
// Failures that will never succeed on retry bypass the counter entirely;
// the quota only bounds transient failures.
type attemptQuota struct {
	maxAttempts int // 0 disables the limit
}

// Check validates an attempt count against the limit.
//
// Returns AttemptsExceededError once attempts reaches the limit.
func (q attemptQuota) Check(mutationID string, attempts int) error {
	if q.maxAttempts <= 0 || attempts < q.maxAttempts {
		return nil
	}
	return &AttemptsExceededError{
		MutationID: mutationID,
		Attempts:   attempts,
		Limit:      q.maxAttempts,
	}
}

// AttemptsExceededError is the dead-letter reason for a mutation that
// exhausted its attempts.
type AttemptsExceededError struct {
	MutationID string
	Attempts   int
	Limit      int
}

// Error implements the error interface.
func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("mutation %s exceeded max attempts: %d attempts >= %d limit",
		e.MutationID, e.Attempts, e.Limit)
}

// IsAttemptsExceededError returns true if the error is an AttemptsExceededError.
// Uses errors.As to handle wrapped errors.
func IsAttemptsExceededError(err error) bool {
	var ae *AttemptsExceededError
	return errors.As(err, &ae)
}
