// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRequestNotFound indicates a collaboration request was not found by the given identifier.
	ErrRequestNotFound = errors.New("collaboration request not found")

	// ErrBatchNotFound indicates a collaboration batch was not found by the given identifier.
	ErrBatchNotFound = errors.New("collaboration batch not found")

	// ErrPendingRequestExists indicates the requester already has a pending request for the item.
	ErrPendingRequestExists = errors.New("pending request already exists for requester and item")

	// ErrStatusMismatch indicates a compare-and-swap lost against a concurrent writer.
	ErrStatusMismatch = errors.New("request status changed concurrently")

	// ErrRequestAlreadyExists indicates a request with the same identifier is already stored.
	ErrRequestAlreadyExists = errors.New("collaboration request already exists")

	// ErrBatchAlreadyExists indicates a batch with the same identifier is already stored.
	ErrBatchAlreadyExists = errors.New("collaboration batch already exists")
)

// RequestError wraps request-related errors with additional context.
type RequestError struct {
	Op        string // Operation being performed (e.g., "Insert", "CompareAndSwap")
	RequestID string // Request ID if applicable
	Err       error  // Underlying error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s operation failed for request %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for request errors.
func (e *RequestError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRequestError creates a new request error with context.
func NewRequestError(op, requestID string, err error) *RequestError {
	return &RequestError{
		Op:        op,
		RequestID: requestID,
		Err:       err,
	}
}

// IsRequestNotFound checks if an error indicates a request was not found.
func IsRequestNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}

// IsBatchNotFound checks if an error indicates a batch was not found.
func IsBatchNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound)
}

// IsPendingRequestExists checks if an error indicates the pending uniqueness lock is held.
func IsPendingRequestExists(err error) bool {
	return errors.Is(err, ErrPendingRequestExists)
}

// IsStatusMismatch checks if an error indicates a lost compare-and-swap.
func IsStatusMismatch(err error) bool {
	return errors.Is(err, ErrStatusMismatch)
}
