// Package services implements the collaboration-request lifecycle: the capability
// resolver, the transition engine and the batch coordinator.
package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches exactly one of them with
// errors.Is. A conflict means the caller should re-fetch and retry; a validation error
// means the input must change.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not authorized")
)

var (
	// Validation Errors (400 Bad Request).
	ErrActorRequired       = errors.New("actor is required")
	ErrMessageRequired     = errors.New("message is required")
	ErrMessageTooLong      = errors.New("message is too long")
	ErrSelfRequest         = errors.New("cannot request collaboration on your own item")
	ErrInvalidParts        = errors.New("invalid part names")
	ErrPartsNotApplicable  = errors.New("item has no part granularity")
	ErrPartsUnavailable    = errors.New("parts are not currently available")
	ErrNoPack              = errors.New("item does not belong to a pack")
	ErrInvalidDecision     = errors.New("invalid decision")
	ErrInvalidAction       = errors.New("invalid batch action")
	ErrInvalidStatus       = errors.New("invalid status filter")
	ErrBatchSize           = errors.New("batch must contain between 1 and 50 items")
	ErrDuplicateItems      = errors.New("batch contains the same item twice")
	ErrMixedOwnership      = errors.New("all batch items must belong to the same owner")
	ErrIncompleteDecisions = errors.New("decisions must cover every batch member")
	ErrUnknownMember       = errors.New("decision references a request outside the batch")

	// Business Logic Conflicts (409 Conflict).
	ErrDuplicatePending = errors.New("a pending request already exists for this item")
	ErrAlreadyResolved  = errors.New("request is no longer pending")
	ErrNotRejected      = errors.New("only rejected requests can be reopened")
	ErrCannotCancel     = errors.New("accepted requests cannot be cancelled")
	ErrGrantFailed      = errors.New("permissions could not be granted")

	// Not Found (404).
	ErrRequestNotFound = errors.New("collaboration request not found")
	ErrBatchNotFound   = errors.New("collaboration batch not found")
	ErrItemNotFound    = errors.New("item not found")

	// Authorization (403).
	ErrNotOwner     = errors.New("only the item owner can do this")
	ErrNotRequester = errors.New("only the requester can do this")
	ErrNotAllowed   = errors.New("only the requester or the owner can see this")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Kind    error  // One of the error kinds
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return target == e.Kind || errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFoundError checks if an error is a missing request, batch or item (HTTP 404).
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthorizationError checks if the actor may not perform the operation (HTTP 403).
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Code returns the API error code of a service error, or an empty string.
func Code(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}

	return ""
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Kind: ErrValidation, Code: code, Message: message, Err: err}
}

func NewConflictError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Kind: ErrConflict, Code: code, Message: message, Err: err}
}

func NewNotFoundError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Kind: ErrNotFound, Code: code, Message: message, Err: err}
}

func NewAuthorizationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Kind: ErrUnauthorized, Code: code, Message: message, Err: err}
}
