// Package events defines the lifecycle notifications emitted by the collaboration core.
package events

import (
	"time"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Event is implemented by every payload published on Topic.
type Event interface {
	GetType() EventType
}

// Topic is the single topic all lifecycle events are published to.
const Topic = "trackcollab.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Request lifecycle events.
	RequestCreatedEvent   EventType = "request.created"
	RequestAcceptedEvent  EventType = "request.accepted"
	RequestRejectedEvent  EventType = "request.rejected"
	RequestReopenedEvent  EventType = "request.reopened"
	RequestCancelledEvent EventType = "request.cancelled"

	// Batch lifecycle events.
	BatchCreatedEvent  EventType = "batch.created"
	BatchResolvedEvent EventType = "batch.resolved"

	// Authorization events.
	GrantIssuedEvent EventType = "grant.issued"
)

// AllEventTypes lists every event a subscriber may register a handler for.
func AllEventTypes() []EventType {
	return []EventType{
		RequestCreatedEvent,
		RequestAcceptedEvent,
		RequestRejectedEvent,
		RequestReopenedEvent,
		RequestCancelledEvent,
		BatchCreatedEvent,
		BatchResolvedEvent,
		GrantIssuedEvent,
	}
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
}

// RequestEvent is the payload shared by all single-request notifications.
// Recipient is the user the notification is addressed to.
type RequestEvent struct {
	BaseEvent

	RequestID   string               `json:"request_id"`
	ItemID      string               `json:"item_id"`
	RequesterID string               `json:"requester_id"`
	OwnerID     string               `json:"owner_id"`
	Recipient   string               `json:"recipient"`
	Status      models.RequestStatus `json:"status"`
	BatchID     string               `json:"batch_id,omitempty"`
	Message     string               `json:"message,omitempty"`
}

type RequestCreated struct {
	RequestEvent

	RequestedParts models.PartSet `json:"requested_parts,omitempty"`
}

func (e RequestCreated) GetType() EventType {
	return RequestCreatedEvent
}

type RequestAccepted struct {
	RequestEvent

	AssignedParts            models.PartSet `json:"assigned_parts,omitempty"`
	GrantFullPackPermissions bool           `json:"grant_full_pack_permissions"`
}

func (e RequestAccepted) GetType() EventType {
	return RequestAcceptedEvent
}

type RequestRejected struct {
	RequestEvent
}

func (e RequestRejected) GetType() EventType {
	return RequestRejectedEvent
}

type RequestReopened struct {
	RequestEvent
}

func (e RequestReopened) GetType() EventType {
	return RequestReopenedEvent
}

type RequestCancelled struct {
	RequestEvent

	PreviousStatus models.RequestStatus `json:"previous_status"`
}

func (e RequestCancelled) GetType() EventType {
	return RequestCancelledEvent
}

// BatchEvent is the payload shared by batch notifications.
type BatchEvent struct {
	BaseEvent

	BatchID     string             `json:"batch_id"`
	RequesterID string             `json:"requester_id"`
	OwnerID     string             `json:"owner_id"`
	Recipient   string             `json:"recipient"`
	RequestIDs  []string           `json:"request_ids"`
	Status      models.BatchStatus `json:"status"`
}

type BatchCreated struct {
	BatchEvent

	Message string `json:"message"`
}

func (e BatchCreated) GetType() EventType {
	return BatchCreatedEvent
}

type BatchResolved struct {
	BatchEvent

	Action   models.BatchAction `json:"action"`
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
	Failed   int                `json:"failed"`
}

func (e BatchResolved) GetType() EventType {
	return BatchResolvedEvent
}

// GrantIssued carries a materialized permission to the authorization layer.
// Exactly one of Part and Pack is set, matching Kind.
type GrantIssued struct {
	BaseEvent

	Kind models.GrantKind  `json:"kind"`
	Part *models.PartGrant `json:"part,omitempty"`
	Pack *models.PackGrant `json:"pack,omitempty"`
}

func (e GrantIssued) GetType() EventType {
	return GrantIssuedEvent
}

func NewBaseEvent(eventType EventType, actorID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
	}
}

// NewRequestEvent builds the shared request payload. Events that concern the owner
// (creation) are addressed to the owner, everything else to the requester.
func NewRequestEvent(eventType EventType, actorID string, req *models.CollaborationRequest) RequestEvent {
	recipient := req.RequesterID
	if eventType == RequestCreatedEvent || eventType == RequestCancelledEvent {
		recipient = req.OwnerID
	}

	message := req.Message
	if eventType != RequestCreatedEvent {
		message = req.ResponseMessage
	}

	ev := RequestEvent{
		BaseEvent:   NewBaseEvent(eventType, actorID),
		RequestID:   req.ID,
		ItemID:      req.ItemID,
		RequesterID: req.RequesterID,
		OwnerID:     req.OwnerID,
		Recipient:   recipient,
		Status:      req.Status,
		Message:     message,
	}

	if req.InBatch() {
		ev.BatchID = *req.BatchID
	}

	return ev
}

func NewRequestCreated(req *models.CollaborationRequest) RequestCreated {
	return RequestCreated{
		RequestEvent:   NewRequestEvent(RequestCreatedEvent, req.RequesterID, req),
		RequestedParts: req.RequestedParts,
	}
}

// NewRequestResolved returns the accepted or rejected event matching the request's status.
func NewRequestResolved(actorID string, req *models.CollaborationRequest) Event {
	if req.Status == models.RequestStatusAccepted {
		return RequestAccepted{
			RequestEvent:             NewRequestEvent(RequestAcceptedEvent, actorID, req),
			AssignedParts:            req.AssignedParts,
			GrantFullPackPermissions: req.GrantFullPackPermissions,
		}
	}

	return RequestRejected{RequestEvent: NewRequestEvent(RequestRejectedEvent, actorID, req)}
}

func NewRequestReopened(actorID string, req *models.CollaborationRequest) RequestReopened {
	return RequestReopened{RequestEvent: NewRequestEvent(RequestReopenedEvent, actorID, req)}
}

func NewRequestCancelled(actorID string, req *models.CollaborationRequest) RequestCancelled {
	return RequestCancelled{
		RequestEvent:   NewRequestEvent(RequestCancelledEvent, actorID, req),
		PreviousStatus: req.Status,
	}
}

func NewBatchEvent(eventType EventType, actorID string, batch *models.CollaborationBatch) BatchEvent {
	recipient := batch.RequesterID
	if eventType == BatchCreatedEvent {
		recipient = batch.OwnerID
	}

	return BatchEvent{
		BaseEvent:   NewBaseEvent(eventType, actorID),
		BatchID:     batch.ID,
		RequesterID: batch.RequesterID,
		OwnerID:     batch.OwnerID,
		Recipient:   recipient,
		RequestIDs:  batch.RequestIDs,
		Status:      batch.Status,
	}
}

func NewBatchCreated(batch *models.CollaborationBatch) BatchCreated {
	return BatchCreated{
		BatchEvent: NewBatchEvent(BatchCreatedEvent, batch.RequesterID, batch),
		Message:    batch.Message,
	}
}

func NewPartGrantIssued(grant models.PartGrant) GrantIssued {
	return GrantIssued{
		BaseEvent: NewBaseEvent(GrantIssuedEvent, grant.ActorID),
		Kind:      models.GrantKindPart,
		Part:      &grant,
	}
}

func NewPackGrantIssued(grant models.PackGrant) GrantIssued {
	return GrantIssued{
		BaseEvent: NewBaseEvent(GrantIssuedEvent, grant.ActorID),
		Kind:      models.GrantKindPack,
		Pack:      &grant,
	}
}
