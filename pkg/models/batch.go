package models

import "time"

type BatchStatus string

const (
	BatchStatusPending  BatchStatus = "pending"
	BatchStatusApproved BatchStatus = "approved"
	BatchStatusRejected BatchStatus = "rejected"
	BatchStatusPartial  BatchStatus = "partial"
)

// BatchAction selects how an owner resolves a batch.
type BatchAction string

const (
	BatchActionApproveAll BatchAction = "approve_all"
	BatchActionRejectAll  BatchAction = "reject_all"
	BatchActionSelective  BatchAction = "selective"
)

func (a BatchAction) IsValid() bool {
	switch a {
	case BatchActionApproveAll, BatchActionRejectAll, BatchActionSelective:
		return true
	default:
		return false
	}
}

// CollaborationBatch groups requests made together against a single owner.
// Status is derived from the members every time the batch is read and is not persisted.
type CollaborationBatch struct {
	ID          string      `json:"id"`
	RequesterID string      `json:"requester_id"`
	OwnerID     string      `json:"owner_id"`
	Message     string      `json:"message"`
	RequestIDs  []string    `json:"request_ids"`
	Status      BatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DeriveBatchStatus computes a batch status from its member statuses.
// A batch whose members were all withdrawn is reported as rejected.
func DeriveBatchStatus(statuses []RequestStatus) BatchStatus {
	var accepted, rejected int

	for _, s := range statuses {
		switch s {
		case RequestStatusPending:
			return BatchStatusPending
		case RequestStatusAccepted:
			accepted++
		case RequestStatusRejected:
			rejected++
		}
	}

	switch {
	case accepted > 0 && rejected == 0:
		return BatchStatusApproved
	case accepted > 0:
		return BatchStatusPartial
	default:
		return BatchStatusRejected
	}
}

// MemberStatuses collects the statuses of the given members.
func MemberStatuses(members []*CollaborationRequest) []RequestStatus {
	out := make([]RequestStatus, len(members))
	for i, m := range members {
		out[i] = m.Status
	}

	return out
}
