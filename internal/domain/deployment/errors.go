package deployment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a checksum or a context root is absent.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousResult is returned when a checksum matches more than one artifact.
	ErrAmbiguousResult = errors.New("ambiguous result")
	// ErrRepositoryProtocol is returned for malformed or non-success repository responses
	// and for repository paths too short to derive a version from.
	ErrRepositoryProtocol = errors.New("repository protocol error")
	// ErrContainer is returned when the container refuses a read of its deployment state.
	ErrContainer = errors.New("container error")
	// ErrExecutionTimeout is returned when a plan does not complete within the bound.
	ErrExecutionTimeout = errors.New("plan execution timed out")
	// ErrExecutionInterrupted is returned when waiting for a plan was interrupted.
	ErrExecutionInterrupted = errors.New("plan execution interrupted")
	// ErrExecutionFailed matches every *ExecutionFailedError.
	ErrExecutionFailed = errors.New("plan execution failed")
	// ErrValidation is returned for caller-supplied input that cannot be accepted.
	ErrValidation = errors.New("validation failed")
)

// ProtocolError describes a repository response that could not be used.
type ProtocolError struct {
	// Endpoint is the URL that was requested.
	Endpoint string
	// Status is the HTTP status line, empty when the status itself was fine.
	Status string
	// Err is the underlying decode error, if any.
	Err error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	switch {
	case e.Status != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", ErrRepositoryProtocol, e.Endpoint, e.Status, e.Err)
	case e.Status != "":
		return fmt.Sprintf("%s: %s: %s", ErrRepositoryProtocol, e.Endpoint, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", ErrRepositoryProtocol, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s: %s", ErrRepositoryProtocol, e.Endpoint)
	}
}

// Is reports ErrRepositoryProtocol as a match.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrRepositoryProtocol
}

// Unwrap returns the underlying decode error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ExecutionFailedError is the aggregated failure of a plan, carrying the first root cause.
type ExecutionFailedError struct {
	// PlanID is the correlation id of the failed plan.
	PlanID uuid.UUID
	// Cause is the first failure cause in action order.
	Cause error
}

// Error implements error.
func (e *ExecutionFailedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: plan %s", ErrExecutionFailed, e.PlanID)
	}

	return fmt.Sprintf("%s: plan %s: %v", ErrExecutionFailed, e.PlanID, e.Cause)
}

// Is reports ErrExecutionFailed as a match.
func (e *ExecutionFailedError) Is(target error) bool {
	return target == ErrExecutionFailed
}

// Unwrap returns the root cause.
func (e *ExecutionFailedError) Unwrap() error {
	return e.Cause
}
