package engine

import (
	"errors"
	"fmt"
)

// OutcomeError describes why a mutation did not succeed.
//
// Outcome errors include:
//   - Transport: no HTTP response was obtained
//   - Server: a retryable status (408, 425, 429, 5xx)
//   - Rejected: a status that will not succeed on retry (4xx)
//   - Resolution: a 409 whose conflict could not be resolved
//   - Internal: local bookkeeping failed or a worker panicked
type OutcomeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// MutationID identifies the affected mutation.
	MutationID string

	// StatusCode is the HTTP status, 0 when none was received.
	StatusCode int

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes outcome errors.
type ErrorCode string

const (
	// ErrCodeTransport indicates the request never produced a response.
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeServer indicates a retryable HTTP status.
	ErrCodeServer ErrorCode = "SERVER_ERROR"

	// ErrCodeRejected indicates a permanent HTTP status.
	ErrCodeRejected ErrorCode = "REJECTED"

	// ErrCodeResolution indicates conflict resolution failed.
	ErrCodeResolution ErrorCode = "RESOLUTION_FAILED"

	// ErrCodeInternal indicates a local failure while processing.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error implements the error interface.
func (e *OutcomeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.MutationID != "" {
		return fmt.Sprintf("%s: %s (mutation=%s)", e.Code, msg, e.MutationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *OutcomeError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying the mutation unchanged is pointless.
func (e *OutcomeError) Permanent() bool {
	return e.Code == ErrCodeRejected
}

func hasCode(err error, code ErrorCode) bool {
	var oe *OutcomeError
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// IsTransportError returns true if the mutation failed without a response.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsRejectedError returns true if the server permanently rejected the mutation.
func IsRejectedError(err error) bool {
	return hasCode(err, ErrCodeRejected)
}

// IsResolutionError returns true if conflict resolution failed.
func IsResolutionError(err error) bool {
	return hasCode(err, ErrCodeResolution)
}
