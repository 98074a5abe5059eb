// Package persistence provides the storage contract for collaboration requests and batches.
package persistence

import (
	"context"

	"github.com/dukex/trackcollab/pkg/models"
)

// RequestFilter narrows a request listing. Empty fields match everything.
type RequestFilter struct {
	OwnerID     string
	RequesterID string
	ItemID      string
	BatchID     string
	Status      *models.RequestStatus
}

// Matches reports whether the request satisfies every set field of the filter.
func (f RequestFilter) Matches(req *models.CollaborationRequest) bool {
	if f.OwnerID != "" && req.OwnerID != f.OwnerID {
		return false
	}

	if f.RequesterID != "" && req.RequesterID != f.RequesterID {
		return false
	}

	if f.ItemID != "" && req.ItemID != f.ItemID {
		return false
	}

	if f.BatchID != "" && (req.BatchID == nil || *req.BatchID != f.BatchID) {
		return false
	}

	if f.Status != nil && req.Status != *f.Status {
		return false
	}

	return true
}

// RequestRepository stores collaboration requests. Implementations provide the two
// atomic primitives the transition engine relies on; they never enforce business rules
// beyond the pending uniqueness lock.
type RequestRepository interface {
	// Insert stores a new request. When the request is pending and another pending request
	// exists for the same (requester, item) pair it fails with ErrPendingRequestExists.
	// The check and the write are a single atomic step.
	Insert(ctx context.Context, req *models.CollaborationRequest) error

	// GetByID returns the request or ErrRequestNotFound.
	GetByID(ctx context.Context, id string) (*models.CollaborationRequest, error)

	// CompareAndSwap replaces the stored request with req only if the stored status equals
	// expected. It fails with ErrStatusMismatch when another writer got there first and with
	// ErrPendingRequestExists when req moves back to pending while the pair is locked.
	CompareAndSwap(ctx context.Context, expected models.RequestStatus, req *models.CollaborationRequest) error

	// DeleteIfStatus removes the request only if its current status is one of allowed.
	DeleteIfStatus(ctx context.Context, id string, allowed ...models.RequestStatus) error

	// List returns matching requests, newest first.
	List(ctx context.Context, filter RequestFilter) ([]*models.CollaborationRequest, error)
}

// BatchRepository stores batch envelopes. Member statuses live on the requests.
type BatchRepository interface {
	Insert(ctx context.Context, batch *models.CollaborationBatch) error
	GetByID(ctx context.Context, id string) (*models.CollaborationBatch, error)
}
