// Package web provides HTTP request and response types for the collaboration API.
package web

import (
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/services"
)

// ActorHeader carries the opaque id of the calling user.
const ActorHeader = "X-Actor-ID"

// CreateRequestRequest represents the request body for asking an owner for access to one item.
type CreateRequestRequest struct {
	ItemID         string   `json:"item_id"         validate:"required"`
	Message        string   `json:"message"         validate:"required,max=1000"`
	RequestedParts []string `json:"requested_parts" validate:"omitempty,dive,required"`
}

// RespondRequest represents the owner's answer to a single request.
type RespondRequest struct {
	Decision                 string   `json:"decision"                    validate:"required,oneof=accept accepted reject rejected"`
	ResponseMessage          string   `json:"response_message"            validate:"max=1000"`
	AssignedParts            []string `json:"assigned_parts"              validate:"omitempty,dive,required"`
	GrantFullPackPermissions bool     `json:"grant_full_pack_permissions"`
}

// CreateBatchRequest represents the request body for asking one owner for several items.
type CreateBatchRequest struct {
	OwnerID string   `json:"owner_id"`
	ItemIDs []string `json:"item_ids" validate:"required,min=1,max=50,unique,dive,required"`
	Message string   `json:"message"  validate:"required,max=1000"`
}

// RespondBatchRequest resolves a batch. Decisions is required for the selective action.
type RespondBatchRequest struct {
	Action                   string            `json:"action"                      validate:"required,oneof=approve_all reject_all selective"`
	Decisions                map[string]string `json:"decisions"                   validate:"required_if=Action selective"`
	ResponseMessage          string            `json:"response_message"            validate:"max=1000"`
	GrantFullPackPermissions bool              `json:"grant_full_pack_permissions"`
}

// AvailablePartsResponse lists the parts of an item that can be requested right now.
type AvailablePartsResponse struct {
	ItemID         string         `json:"item_id"`
	AvailableParts models.PartSet `json:"available_parts"`
}

// RequestListResponse wraps a request listing.
type RequestListResponse struct {
	Requests   []*models.CollaborationRequest `json:"requests"`
	TotalCount int                            `json:"total_count"`
}

func newRequestListResponse(requests []*models.CollaborationRequest) RequestListResponse {
	if requests == nil {
		requests = []*models.CollaborationRequest{}
	}

	return RequestListResponse{Requests: requests, TotalCount: len(requests)}
}

// BatchResponse is a batch with its members and, after a respond, the members that failed.
type BatchResponse struct {
	*models.CollaborationBatch

	Members  []*models.CollaborationRequest `json:"members"`
	Failures []services.MemberFailure       `json:"failures,omitempty"`
}

func newBatchResponse(result *services.BatchResult) BatchResponse {
	members := result.Members
	if members == nil {
		members = []*models.CollaborationRequest{}
	}

	return BatchResponse{
		CollaborationBatch: result.Batch,
		Members:            members,
		Failures:           result.Failures,
	}
}
