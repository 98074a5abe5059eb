package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/trackcollab/pkg/authz"
	"github.com/dukex/trackcollab/pkg/eventbus"
	"github.com/dukex/trackcollab/pkg/events"
	"github.com/dukex/trackcollab/pkg/items"
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/otelhelper"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// systemNotePrefix marks text appended to a response message by the service itself.
const systemNotePrefix = "[system] permissions could not be granted: "

// Collaboration is the transition engine. It is the only writer of request status.
type Collaboration struct {
	persistence  persistence.Persistence
	resolver     *Resolver
	materializer *authz.Materializer
	publisher    eventbus.EventPublisher
	logger       *slog.Logger
	tracer       trace.Tracer

	// Serializes the availability check and the accept write per item, so two accepts can
	// never assign the same step. Shared stores add their own lock across processes.
	itemLocks *keyedMutex

	now   func() time.Time
	newID func() string
}

// NewCollaboration creates the transition engine. A nil publisher disables lifecycle events.
func NewCollaboration(
	p persistence.Persistence,
	lookup items.Lookup,
	sink authz.Sink,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Collaboration {
	return &Collaboration{
		persistence:  p,
		resolver:     NewResolver(lookup, p.RequestRepository()),
		materializer: authz.NewMaterializer(sink),
		publisher:    publisher,
		logger:       logger.With("module", "collaboration"),
		tracer:       otel.Tracer("trackcollab.services"),
		itemLocks:    newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.New().String() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (c *Collaboration) HealthCheck(ctx context.Context) (string, bool) {
	if c.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := c.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// AvailableParts lists the parts of an item that can currently be requested.
func (c *Collaboration) AvailableParts(ctx context.Context, itemID string) (_ models.PartSet, err error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.available_parts",
		attribute.String(otelhelper.ItemIDKey, itemID))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	return c.resolver.AvailableParts(ctx, itemID)
}

// CreateRequestInput holds the fields a requester supplies for a single request.
type CreateRequestInput struct {
	RequesterID    string
	ItemID         string
	Message        string
	RequestedParts []string
}

// CreateRequest stores a new pending request. The pending uniqueness check is the storage
// layer's atomic insert, never a separate read.
func (c *Collaboration) CreateRequest(ctx context.Context, in CreateRequestInput) (_ *models.CollaborationRequest, err error) {
	const op = "create_request"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.create_request",
		attribute.String(otelhelper.ItemIDKey, in.ItemID),
		attribute.String(otelhelper.ActorIDKey, in.RequesterID))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	if strings.TrimSpace(in.RequesterID) == "" {
		return nil, NewValidationError(op, "actor_required", "requester is required", ErrActorRequired)
	}

	message, err := normalizeMessage(op, in.Message, true)
	if err != nil {
		return nil, err
	}

	parts, err := parseParts(op, in.RequestedParts)
	if err != nil {
		return nil, err
	}

	item, err := c.resolver.item(ctx, op, in.ItemID)
	if err != nil {
		return nil, err
	}

	if item.OwnerID == in.RequesterID {
		return nil, NewValidationError(op, "self_request", "", ErrSelfRequest)
	}

	if !parts.Empty() {
		if !item.InProgress() {
			return nil, NewValidationError(op, "parts_not_applicable",
				fmt.Sprintf("item %s is %s and is requested as a whole", item.ID, item.Stage), ErrPartsNotApplicable)
		}

		available, err := c.resolver.availableFor(ctx, item)
		if err != nil {
			return nil, err
		}

		if !parts.IsSubsetOf(available) {
			return nil, partsUnavailable(op, parts, available)
		}
	}

	now := c.now()
	req := &models.CollaborationRequest{
		ID:             c.newID(),
		ItemID:         item.ID,
		RequesterID:    in.RequesterID,
		OwnerID:        item.OwnerID,
		Message:        message,
		RequestedParts: parts,
		Status:         models.RequestStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = c.persistence.RequestRepository().Insert(ctx, req)
	if err != nil {
		if persistence.IsPendingRequestExists(err) {
			return nil, NewConflictError(op, "duplicate_pending", "", ErrDuplicatePending)
		}

		return nil, fmt.Errorf("failed to store request: %w", err)
	}

	c.logger.InfoContext(ctx, "Collaboration request created",
		"request_id", req.ID, "item_id", req.ItemID, "requester_id", req.RequesterID, "parts", req.RequestedParts.String())

	c.publish(ctx, req.ItemID, events.NewRequestCreated(req))

	return req, nil
}

// RespondInput is the owner's answer to a single request. AssignedParts is optional;
// when GrantFullPackPermissions is set it is ignored.
type RespondInput struct {
	RequestID                string
	ActorID                  string
	Decision                 models.Decision
	ResponseMessage          string
	AssignedParts            []string
	GrantFullPackPermissions bool
}

// Respond accepts or rejects a pending request. Only the owner recorded on the request may
// respond, and only once: a second respond, racing or not, is a conflict.
func (c *Collaboration) Respond(ctx context.Context, in RespondInput) (_ *models.CollaborationRequest, err error) {
	const op = "respond"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.respond",
		attribute.String(otelhelper.RequestIDKey, in.RequestID),
		attribute.String(otelhelper.ActorIDKey, in.ActorID),
		attribute.String(otelhelper.DecisionKey, string(in.Decision)))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	if !in.Decision.IsValid() {
		return nil, NewValidationError(op, "invalid_decision", fmt.Sprintf("unknown decision %q", in.Decision), ErrInvalidDecision)
	}

	responseMessage, err := normalizeMessage(op, in.ResponseMessage, false)
	if err != nil {
		return nil, err
	}

	req, err := c.loadPending(ctx, op, in.RequestID, in.ActorID)
	if err != nil {
		return nil, err
	}

	if in.Decision == models.DecisionReject {
		return c.reject(ctx, op, req, responseMessage)
	}

	explicit, err := parseParts(op, in.AssignedParts)
	if err != nil {
		return nil, err
	}

	return c.accept(ctx, op, req, acceptance{
		responseMessage: responseMessage,
		explicitParts:   explicit,
		fullPack:        in.GrantFullPackPermissions,
	})
}

// loadPending fetches a request the actor owns and that is still pending.
func (c *Collaboration) loadPending(ctx context.Context, op, requestID, actorID string) (*models.CollaborationRequest, error) {
	req, err := c.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}

	if req.OwnerID != actorID {
		return nil, NewAuthorizationError(op, "not_owner", "", ErrNotOwner)
	}

	if req.Status != models.RequestStatusPending {
		return nil, NewConflictError(op, "already_resolved",
			fmt.Sprintf("request %s is already %s", req.ID, req.Status), ErrAlreadyResolved)
	}

	return req, nil
}

func (c *Collaboration) reject(ctx context.Context, op string, req *models.CollaborationRequest, responseMessage string) (*models.CollaborationRequest, error) {
	now := c.now()

	updated := req.Clone()
	updated.Status = models.RequestStatusRejected
	updated.AssignedParts = nil
	updated.GrantFullPackPermissions = false
	updated.ResponseMessage = responseMessage
	updated.RespondedAt = &now
	updated.UpdatedAt = now

	if err := c.swap(ctx, op, models.RequestStatusPending, updated); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Collaboration request rejected", "request_id", req.ID, "item_id", req.ItemID)
	c.publish(ctx, updated.ItemID, events.NewRequestResolved(updated.OwnerID, updated))

	return updated, nil
}

// acceptance carries the owner's choices for an accept.
type acceptance struct {
	responseMessage string
	explicitParts   models.PartSet
	fullPack        bool

	// batch members that cannot be granted are rejected with a system note instead of
	// failing the call.
	batchMember bool
}

// accept resolves the parts to assign, writes the acceptance and materializes the grant.
// If the grant cannot be issued a single request is moved back to pending. A batch member
// is rejected instead, and the rejected request is returned alongside the error.
func (c *Collaboration) accept(ctx context.Context, op string, req *models.CollaborationRequest, a acceptance) (*models.CollaborationRequest, error) {
	unlock, err := c.lockItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	item, err := c.resolver.item(ctx, op, req.ItemID)
	if err == nil {
		var parts models.PartSet

		parts, err = c.resolveAssignment(ctx, op, item, req, a)
		if err == nil {
			return c.grant(ctx, op, req, item, parts, a)
		}
	}

	if a.batchMember && (IsValidationError(err) || IsNotFoundError(err)) {
		pending := req.Clone()
		pending.ResponseMessage = a.responseMessage

		return c.rejectMember(ctx, op, pending, err)
	}

	return nil, err
}

func (c *Collaboration) grant(ctx context.Context, op string, req *models.CollaborationRequest, item *models.Item, parts models.PartSet, a acceptance) (*models.CollaborationRequest, error) {
	now := c.now()

	updated := req.Clone()
	updated.Status = models.RequestStatusAccepted
	updated.AssignedParts = parts
	updated.GrantFullPackPermissions = a.fullPack
	updated.ResponseMessage = a.responseMessage
	updated.RespondedAt = &now
	updated.UpdatedAt = now

	if err := c.swap(ctx, op, models.RequestStatusPending, updated); err != nil {
		return nil, err
	}

	if _, grantErr := c.materializer.Materialize(ctx, updated, item); grantErr != nil {
		if a.batchMember {
			c.logger.ErrorContext(ctx, "Failed to materialize grant, rejecting batch member",
				"request_id", req.ID, "error", grantErr)

			return c.rejectMember(ctx, op, updated, grantErr)
		}

		c.logger.ErrorContext(ctx, "Failed to materialize grant, restoring pending request",
			"request_id", req.ID, "error", grantErr)
		c.compensate(ctx, updated, grantErr)

		return nil, NewConflictError(op, "grant_failed", grantErr.Error(), fmt.Errorf("%w: %w", ErrGrantFailed, grantErr))
	}

	c.logger.InfoContext(ctx, "Collaboration request accepted",
		"request_id", req.ID, "item_id", req.ItemID, "parts", parts.String(), "full_pack", a.fullPack)
	c.publish(ctx, updated.ItemID, events.NewRequestResolved(updated.OwnerID, updated))

	return updated, nil
}

// rejectMember rejects a batch member that could not be accepted. current is either the
// pending member or the member already written as accepted. The returned error always
// describes why the member was not accepted; the request is nil only if the rejection
// itself could not be written.
func (c *Collaboration) rejectMember(ctx context.Context, op string, current *models.CollaborationRequest, cause error) (*models.CollaborationRequest, error) {
	rejected := withSystemNote(current, cause, c.now())

	if err := c.swap(ctx, op, current.Status, rejected); err != nil {
		c.logger.ErrorContext(ctx, "Failed to reject batch member", "request_id", current.ID, "error", err)

		return nil, err
	}

	c.logger.InfoContext(ctx, "Batch member rejected by system", "request_id", current.ID, "reason", cause)
	c.publish(ctx, rejected.ItemID, events.NewRequestResolved(rejected.OwnerID, rejected))

	var serviceErr *ServiceError
	if errors.As(cause, &serviceErr) {
		return rejected, cause
	}

	return rejected, NewConflictError(op, "grant_failed", cause.Error(), fmt.Errorf("%w: %w", ErrGrantFailed, cause))
}

// resolveAssignment picks the parts an acceptance assigns. A full-pack grant stores no parts.
// Otherwise the explicit parts win over the requested parts, and whatever is chosen must be
// available right now. With neither, the request is granted on the whole item and claims no
// steps.
func (c *Collaboration) resolveAssignment(ctx context.Context, op string, item *models.Item, req *models.CollaborationRequest, a acceptance) (models.PartSet, error) {
	if a.fullPack {
		if item.PackID == "" {
			return nil, NewValidationError(op, "no_pack", fmt.Sprintf("item %s has no pack", item.ID), ErrNoPack)
		}

		return models.PartSet{}, nil
	}

	if !item.InProgress() {
		if !a.explicitParts.Empty() {
			return nil, NewValidationError(op, "parts_not_applicable",
				fmt.Sprintf("item %s is %s and is granted as a whole", item.ID, item.Stage), ErrPartsNotApplicable)
		}

		return models.PartSet{}, nil
	}

	chosen := a.explicitParts
	if chosen.Empty() {
		chosen = req.RequestedParts
	}

	if chosen.Empty() {
		return models.PartSet{}, nil
	}

	available, err := c.resolver.availableFor(ctx, item)
	if err != nil {
		return nil, err
	}

	if !chosen.IsSubsetOf(available) {
		return nil, partsUnavailable(op, chosen, available)
	}

	return chosen, nil
}

// compensate undoes an acceptance whose grant failed. It first tries to restore the
// pending request; if the requester opened another pending request meanwhile, the
// acceptance is turned into a rejection carrying a system note instead.
func (c *Collaboration) compensate(ctx context.Context, accepted *models.CollaborationRequest, cause error) {
	repo := c.persistence.RequestRepository()

	restored := accepted.Clone()
	restored.Status = models.RequestStatusPending
	restored.ClearResponse()
	restored.UpdatedAt = c.now()

	err := repo.CompareAndSwap(ctx, models.RequestStatusAccepted, restored)
	if err == nil {
		return
	}

	c.logger.WarnContext(ctx, "Could not restore pending request, rejecting it", "request_id", accepted.ID, "error", err)

	rejected := withSystemNote(accepted, cause, c.now())

	if err := repo.CompareAndSwap(ctx, models.RequestStatusAccepted, rejected); err != nil {
		c.logger.ErrorContext(ctx, "Accepted request has no grant", "request_id", accepted.ID, "error", err)
	}
}

// Reopen moves a rejected request back to pending and clears every response field.
func (c *Collaboration) Reopen(ctx context.Context, requestID, actorID string) (_ *models.CollaborationRequest, err error) {
	const op = "reopen"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.reopen",
		attribute.String(otelhelper.RequestIDKey, requestID),
		attribute.String(otelhelper.ActorIDKey, actorID))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	req, err := c.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}

	if req.OwnerID != actorID {
		return nil, NewAuthorizationError(op, "not_owner", "", ErrNotOwner)
	}

	if req.Status != models.RequestStatusRejected {
		return nil, NewConflictError(op, "not_rejected",
			fmt.Sprintf("request %s is %s", req.ID, req.Status), ErrNotRejected)
	}

	updated := req.Clone()
	updated.Status = models.RequestStatusPending
	updated.ClearResponse()
	updated.UpdatedAt = c.now()

	if err := c.swap(ctx, op, models.RequestStatusRejected, updated); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Collaboration request reopened", "request_id", req.ID)
	c.publish(ctx, updated.ItemID, events.NewRequestReopened(actorID, updated))

	return updated, nil
}

// Cancel deletes a pending or rejected request on behalf of its requester, releasing the
// pending lock for the (requester, item) pair.
func (c *Collaboration) Cancel(ctx context.Context, requestID, actorID string) (err error) {
	const op = "cancel"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.cancel",
		attribute.String(otelhelper.RequestIDKey, requestID),
		attribute.String(otelhelper.ActorIDKey, actorID))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	req, err := c.load(ctx, op, requestID)
	if err != nil {
		return err
	}

	if req.RequesterID != actorID {
		return NewAuthorizationError(op, "not_requester", "", ErrNotRequester)
	}

	if req.Status == models.RequestStatusAccepted {
		return NewConflictError(op, "cannot_cancel", "", ErrCannotCancel)
	}

	err = c.persistence.RequestRepository().DeleteIfStatus(ctx, req.ID, models.RequestStatusPending, models.RequestStatusRejected)
	if err != nil {
		return c.mapWriteError(op, req.ID, err)
	}

	c.logger.InfoContext(ctx, "Collaboration request cancelled", "request_id", req.ID, "previous_status", req.Status)
	c.publish(ctx, req.ItemID, events.NewRequestCancelled(actorID, req))

	return nil
}

// GetRequest returns a request visible to its requester or owner.
func (c *Collaboration) GetRequest(ctx context.Context, requestID, actorID string) (*models.CollaborationRequest, error) {
	const op = "get_request"

	req, err := c.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}

	if req.RequesterID != actorID && req.OwnerID != actorID {
		return nil, NewAuthorizationError(op, "not_allowed", "", ErrNotAllowed)
	}

	return req, nil
}

// ListReceived returns requests addressed to the actor as owner, newest first.
func (c *Collaboration) ListReceived(ctx context.Context, actorID string, status *models.RequestStatus) ([]*models.CollaborationRequest, error) {
	return c.list(ctx, "list_received", persistence.RequestFilter{OwnerID: actorID, Status: status})
}

// ListSent returns requests the actor made, newest first.
func (c *Collaboration) ListSent(ctx context.Context, actorID string, status *models.RequestStatus) ([]*models.CollaborationRequest, error) {
	return c.list(ctx, "list_sent", persistence.RequestFilter{RequesterID: actorID, Status: status})
}

func (c *Collaboration) list(ctx context.Context, op string, filter persistence.RequestFilter) ([]*models.CollaborationRequest, error) {
	if filter.OwnerID == "" && filter.RequesterID == "" {
		return nil, NewValidationError(op, "actor_required", "", ErrActorRequired)
	}

	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, NewValidationError(op, "invalid_status", fmt.Sprintf("unknown status %q", *filter.Status), ErrInvalidStatus)
	}

	requests, err := c.persistence.RequestRepository().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	return requests, nil
}

func (c *Collaboration) load(ctx context.Context, op, requestID string) (*models.CollaborationRequest, error) {
	req, err := c.persistence.RequestRepository().GetByID(ctx, requestID)
	if err != nil {
		if persistence.IsRequestNotFound(err) {
			return nil, NewNotFoundError(op, "request_not_found", "request "+requestID+" not found", ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}

	return req, nil
}

// swap runs the compare-and-swap and translates storage errors into service errors.
func (c *Collaboration) swap(ctx context.Context, op string, expected models.RequestStatus, req *models.CollaborationRequest) error {
	err := c.persistence.RequestRepository().CompareAndSwap(ctx, expected, req)
	if err != nil {
		return c.mapWriteError(op, req.ID, err)
	}

	return nil
}

func (c *Collaboration) mapWriteError(op, requestID string, err error) error {
	switch {
	case persistence.IsStatusMismatch(err):
		return NewConflictError(op, "already_resolved",
			"request "+requestID+" was changed concurrently", ErrAlreadyResolved)
	case persistence.IsPendingRequestExists(err):
		return NewConflictError(op, "duplicate_pending", "", ErrDuplicatePending)
	case persistence.IsRequestNotFound(err):
		return NewNotFoundError(op, "request_not_found", "request "+requestID+" not found", ErrRequestNotFound)
	default:
		return fmt.Errorf("failed to write request %s: %w", requestID, err)
	}
}

// publish emits a lifecycle event. Delivery problems are logged and never fail the transition.
func (c *Collaboration) publish(ctx context.Context, key string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, key, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

func normalizeMessage(op, message string, required bool) (string, error) {
	message = strings.TrimSpace(message)

	if required && message == "" {
		return "", NewValidationError(op, "message_required", "", ErrMessageRequired)
	}

	if utf8.RuneCountInString(message) > models.MaxMessageLength {
		return "", NewValidationError(op, "message_too_long",
			fmt.Sprintf("message exceeds %d characters", models.MaxMessageLength), ErrMessageTooLong)
	}

	return message, nil
}

func parseParts(op string, names []string) (models.PartSet, error) {
	parts, err := models.ParsePartSet(names)
	if err != nil {
		return nil, NewValidationError(op, "invalid_parts", err.Error(), fmt.Errorf("%w: %w", ErrInvalidParts, err))
	}

	return parts, nil
}

func partsUnavailable(op string, wanted, available models.PartSet) error {
	return NewValidationError(op, "parts_unavailable",
		fmt.Sprintf("parts %s are not available; available parts are [%s]", wanted.Minus(available), available),
		ErrPartsUnavailable)
}

// withSystemNote turns an accepted request into a rejection whose response message explains
// why the grant could not be issued.
func withSystemNote(req *models.CollaborationRequest, cause error, now time.Time) *models.CollaborationRequest {
	rejected := req.Clone()
	rejected.Status = models.RequestStatusRejected
	rejected.AssignedParts = nil
	rejected.GrantFullPackPermissions = false
	rejected.RespondedAt = &now
	rejected.UpdatedAt = now

	note := systemNotePrefix + cause.Error()
	if rejected.ResponseMessage != "" {
		note = rejected.ResponseMessage + "\n" + note
	}

	rejected.ResponseMessage = note

	return rejected
}
