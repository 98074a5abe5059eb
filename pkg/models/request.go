package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrUnknownDecision = errors.New("unknown decision")

// MaxMessageLength bounds request and response messages, in characters.
const MaxMessageLength = 1000

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected:
		return true
	default:
		return false
	}
}

// CollaborationRequest asks the owner of an item for edit access.
// OwnerID is copied from the item at creation and never changes afterwards.
type CollaborationRequest struct {
	ID                       string        `json:"id"`
	ItemID                   string        `json:"item_id"`
	RequesterID              string        `json:"requester_id"`
	OwnerID                  string        `json:"owner_id"`
	Message                  string        `json:"message"`
	RequestedParts           PartSet       `json:"requested_parts,omitempty"`
	AssignedParts            PartSet       `json:"assigned_parts,omitempty"`
	GrantFullPackPermissions bool          `json:"grant_full_pack_permissions"`
	Status                   RequestStatus `json:"status"`
	BatchID                  *string       `json:"batch_id,omitempty"`
	ResponseMessage          string        `json:"response_message,omitempty"`
	CreatedAt                time.Time     `json:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at"`
	RespondedAt              *time.Time    `json:"responded_at,omitempty"`
}

// Clone returns a deep copy so callers can prepare a CAS write without touching the stored value.
func (r *CollaborationRequest) Clone() *CollaborationRequest {
	c := *r
	c.RequestedParts = slices.Clone(r.RequestedParts)
	c.AssignedParts = slices.Clone(r.AssignedParts)

	if r.BatchID != nil {
		id := *r.BatchID
		c.BatchID = &id
	}

	if r.RespondedAt != nil {
		t := *r.RespondedAt
		c.RespondedAt = &t
	}

	return &c
}

// ClearResponse resets every field set by a response.
func (r *CollaborationRequest) ClearResponse() {
	r.AssignedParts = nil
	r.GrantFullPackPermissions = false
	r.ResponseMessage = ""
	r.RespondedAt = nil
}

// InBatch reports whether the request was created as a batch member.
func (r *CollaborationRequest) InBatch() bool {
	return r.BatchID != nil && *r.BatchID != ""
}

// Decision is the owner's answer to a single request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ParseDecision accepts both the verb ("accept") and the resulting status ("accepted").
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted":
		return DecisionAccept, nil
	case "reject", "rejected":
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDecision, s)
	}
}

func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// Status maps a decision onto the request status it produces.
func (d Decision) Status() RequestStatus {
	if d == DecisionAccept {
		return RequestStatusAccepted
	}

	return RequestStatusRejected
}
