package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/trackcollab/pkg/events"
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/otelhelper"
	"github.com/dukex/trackcollab/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// MaxBatchSize bounds the number of items in one batch.
const MaxBatchSize = 50

// CreateBatchInput asks one owner for access to several items at once. OwnerID is optional;
// when empty it is taken from the first item.
type CreateBatchInput struct {
	RequesterID string
	OwnerID     string
	ItemIDs     []string
	Message     string
}

// BatchRespondInput resolves a batch. Decisions maps member request ids to
// "accept"/"accepted" or "reject"/"rejected" and is only read for the selective action.
type BatchRespondInput struct {
	BatchID                  string
	ActorID                  string
	Action                   models.BatchAction
	Decisions                map[string]string
	ResponseMessage          string
	GrantFullPackPermissions bool
}

// MemberFailure reports a member that could not be resolved as asked.
type MemberFailure struct {
	RequestID string `json:"request_id"`
	ItemID    string `json:"item_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// BatchResult is a batch with its current members, in creation order, and the per-member
// failures of the call that produced it.
type BatchResult struct {
	Batch    *models.CollaborationBatch     `json:"batch"`
	Members  []*models.CollaborationRequest `json:"members"`
	Failures []MemberFailure                `json:"failures,omitempty"`
}

// CreateBatch creates one whole-item request per item and links them under a new batch.
// Either every member is stored or none is.
func (c *Collaboration) CreateBatch(ctx context.Context, in CreateBatchInput) (_ *BatchResult, err error) {
	const op = "create_batch"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.create_batch",
		attribute.String(otelhelper.ActorIDKey, in.RequesterID),
		attribute.Int("trackcollab.batch.size", len(in.ItemIDs)))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	if strings.TrimSpace(in.RequesterID) == "" {
		return nil, NewValidationError(op, "actor_required", "requester is required", ErrActorRequired)
	}

	message, err := normalizeMessage(op, in.Message, true)
	if err != nil {
		return nil, err
	}

	itemIDs, err := batchItemIDs(op, in.ItemIDs)
	if err != nil {
		return nil, err
	}

	ownerID := in.OwnerID

	for _, id := range itemIDs {
		item, err := c.resolver.item(ctx, op, id)
		if err != nil {
			return nil, err
		}

		if ownerID == "" {
			ownerID = item.OwnerID
		}

		if item.OwnerID != ownerID {
			return nil, NewValidationError(op, "mixed_ownership",
				fmt.Sprintf("item %s is not owned by %s", item.ID, ownerID), ErrMixedOwnership)
		}
	}

	if ownerID == in.RequesterID {
		return nil, NewValidationError(op, "self_request", "", ErrSelfRequest)
	}

	now := c.now()
	batch := &models.CollaborationBatch{
		ID:          c.newID(),
		RequesterID: in.RequesterID,
		OwnerID:     ownerID,
		Message:     message,
		RequestIDs:  make([]string, 0, len(itemIDs)),
		Status:      models.BatchStatusPending,
		CreatedAt:   now,
	}

	members := make([]*models.CollaborationRequest, 0, len(itemIDs))
	repo := c.persistence.RequestRepository()

	for _, itemID := range itemIDs {
		batchID := batch.ID
		member := &models.CollaborationRequest{
			ID:             c.newID(),
			ItemID:         itemID,
			RequesterID:    in.RequesterID,
			OwnerID:        ownerID,
			Message:        message,
			RequestedParts: models.PartSet{},
			Status:         models.RequestStatusPending,
			BatchID:        &batchID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := repo.Insert(ctx, member); err != nil {
			c.discardMembers(ctx, members)

			if persistence.IsPendingRequestExists(err) {
				return nil, NewConflictError(op, "duplicate_pending",
					"a pending request already exists for item "+itemID, ErrDuplicatePending)
			}

			return nil, fmt.Errorf("failed to store batch member for %s: %w", itemID, err)
		}

		members = append(members, member)
		batch.RequestIDs = append(batch.RequestIDs, member.ID)
	}

	if err := c.persistence.BatchRepository().Insert(ctx, batch); err != nil {
		c.discardMembers(ctx, members)

		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	c.logger.InfoContext(ctx, "Collaboration batch created",
		"batch_id", batch.ID, "requester_id", batch.RequesterID, "owner_id", batch.OwnerID, "members", len(members))
	c.publish(ctx, batch.ID, events.NewBatchCreated(batch))

	return &BatchResult{Batch: batch, Members: members}, nil
}

// discardMembers removes members of a batch that could not be completed.
func (c *Collaboration) discardMembers(ctx context.Context, members []*models.CollaborationRequest) {
	for _, m := range members {
		err := c.persistence.RequestRepository().DeleteIfStatus(ctx, m.ID, models.RequestStatusPending)
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to discard batch member", "request_id", m.ID, "error", err)
		}
	}
}

func batchItemIDs(op string, ids []string) ([]string, error) {
	if len(ids) == 0 || len(ids) > MaxBatchSize {
		return nil, NewValidationError(op, "batch_size",
			fmt.Sprintf("got %d items", len(ids)), ErrBatchSize)
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, NewValidationError(op, "batch_size", "item ids must not be empty", ErrBatchSize)
		}

		if _, ok := seen[id]; ok {
			return nil, NewValidationError(op, "duplicate_items", "item "+id+" appears twice", ErrDuplicateItems)
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out, nil
}

// RespondBatch applies one decision to every current member. Members are resolved
// independently: a member that cannot be resolved is reported in Failures and never
// blocks or undoes its siblings.
func (c *Collaboration) RespondBatch(ctx context.Context, in BatchRespondInput) (_ *BatchResult, err error) {
	const op = "respond_batch"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "collaboration.respond_batch",
		attribute.String(otelhelper.BatchIDKey, in.BatchID),
		attribute.String(otelhelper.ActorIDKey, in.ActorID),
		attribute.String(otelhelper.BatchActionKey, string(in.Action)))
	defer func() { otelhelper.SetError(span, err); span.End() }()

	if !in.Action.IsValid() {
		return nil, NewValidationError(op, "invalid_action", fmt.Sprintf("unknown action %q", in.Action), ErrInvalidAction)
	}

	responseMessage, err := normalizeMessage(op, in.ResponseMessage, false)
	if err != nil {
		return nil, err
	}

	batch, err := c.loadBatch(ctx, op, in.BatchID)
	if err != nil {
		return nil, err
	}

	if batch.OwnerID != in.ActorID {
		return nil, NewAuthorizationError(op, "not_owner", "", ErrNotOwner)
	}

	members, err := c.members(ctx, batch)
	if err != nil {
		return nil, err
	}

	decisions, err := batchDecisions(op, in, batch, members)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Batch: batch}
	resolved := &events.BatchResolved{Action: in.Action}

	for _, member := range members {
		decision := decisions[member.ID]

		updated, err := c.respondMember(ctx, op, member, decision, acceptance{
			responseMessage: responseMessage,
			fullPack:        in.GrantFullPackPermissions && decision == models.DecisionAccept,
			batchMember:     true,
		})
		if err != nil {
			result.Failures = append(result.Failures, memberFailure(member, err))
			resolved.Failed++
		}

		if updated == nil {
			continue
		}

		switch updated.Status {
		case models.RequestStatusAccepted:
			resolved.Accepted++
		case models.RequestStatusRejected:
			resolved.Rejected++
		}
	}

	result.Members, err = c.members(ctx, batch)
	if err != nil {
		return nil, err
	}

	batch.Status = models.DeriveBatchStatus(models.MemberStatuses(result.Members))

	c.logger.InfoContext(ctx, "Collaboration batch resolved",
		"batch_id", batch.ID, "action", in.Action, "status", batch.Status,
		"accepted", resolved.Accepted, "rejected", resolved.Rejected, "failed", resolved.Failed)

	if batch.Status != models.BatchStatusPending {
		resolved.BatchEvent = events.NewBatchEvent(events.BatchResolvedEvent, in.ActorID, batch)
		c.publish(ctx, batch.ID, *resolved)
	}

	return result, nil
}

// respondMember resolves one member. The member must still be pending.
func (c *Collaboration) respondMember(ctx context.Context, op string, member *models.CollaborationRequest, decision models.Decision, a acceptance) (*models.CollaborationRequest, error) {
	if member.Status != models.RequestStatusPending {
		return nil, NewConflictError(op, "already_resolved",
			fmt.Sprintf("request %s is already %s", member.ID, member.Status), ErrAlreadyResolved)
	}

	if decision == models.DecisionReject {
		return c.reject(ctx, op, member, a.responseMessage)
	}

	return c.accept(ctx, op, member, a)
}

// batchDecisions expands the action into one decision per current member.
func batchDecisions(op string, in BatchRespondInput, batch *models.CollaborationBatch, members []*models.CollaborationRequest) (map[string]models.Decision, error) {
	out := make(map[string]models.Decision, len(members))

	switch in.Action {
	case models.BatchActionApproveAll, models.BatchActionRejectAll:
		decision := models.DecisionAccept
		if in.Action == models.BatchActionRejectAll {
			decision = models.DecisionReject
		}

		for _, m := range members {
			out[m.ID] = decision
		}

		return out, nil
	}

	for id, raw := range in.Decisions {
		if !slices.Contains(batch.RequestIDs, id) {
			return nil, NewValidationError(op, "unknown_member",
				"request "+id+" is not part of batch "+batch.ID, ErrUnknownMember)
		}

		decision, err := models.ParseDecision(raw)
		if err != nil {
			return nil, NewValidationError(op, "invalid_decision", err.Error(), ErrInvalidDecision)
		}

		out[id] = decision
	}

	var missing []string

	for _, m := range members {
		if _, ok := out[m.ID]; !ok {
			missing = append(missing, m.ID)
		}
	}

	if len(missing) > 0 {
		return nil, NewValidationError(op, "incomplete_decisions",
			"missing decisions for "+strings.Join(missing, ", "), ErrIncompleteDecisions)
	}

	return out, nil
}

func memberFailure(member *models.CollaborationRequest, err error) MemberFailure {
	code := Code(err)
	if code == "" {
		code = "internal_error"
	}

	return MemberFailure{
		RequestID: member.ID,
		ItemID:    member.ItemID,
		Code:      code,
		Message:   err.Error(),
		Err:       err,
	}
}

// GetBatch returns a batch and its current members with a freshly derived status.
func (c *Collaboration) GetBatch(ctx context.Context, batchID, actorID string) (*BatchResult, error) {
	const op = "get_batch"

	batch, err := c.loadBatch(ctx, op, batchID)
	if err != nil {
		return nil, err
	}

	if batch.RequesterID != actorID && batch.OwnerID != actorID {
		return nil, NewAuthorizationError(op, "not_allowed", "", ErrNotAllowed)
	}

	members, err := c.members(ctx, batch)
	if err != nil {
		return nil, err
	}

	batch.Status = models.DeriveBatchStatus(models.MemberStatuses(members))

	return &BatchResult{Batch: batch, Members: members}, nil
}

func (c *Collaboration) loadBatch(ctx context.Context, op, batchID string) (*models.CollaborationBatch, error) {
	batch, err := c.persistence.BatchRepository().GetByID(ctx, batchID)
	if err != nil {
		if persistence.IsBatchNotFound(err) {
			return nil, NewNotFoundError(op, "batch_not_found", "batch "+batchID+" not found", ErrBatchNotFound)
		}

		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	return batch, nil
}

// members returns the batch members that still exist, in the order they were created.
// Cancelled members are gone from the store and drop out here.
func (c *Collaboration) members(ctx context.Context, batch *models.CollaborationBatch) ([]*models.CollaborationRequest, error) {
	found, err := c.persistence.RequestRepository().List(ctx, persistence.RequestFilter{BatchID: batch.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list members of batch %s: %w", batch.ID, err)
	}

	position := make(map[string]int, len(batch.RequestIDs))
	for i, id := range batch.RequestIDs {
		position[id] = i
	}

	members := make([]*models.CollaborationRequest, 0, len(found))

	for _, m := range found {
		if _, ok := position[m.ID]; ok {
			members = append(members, m)
		}
	}

	slices.SortFunc(members, func(a, b *models.CollaborationRequest) int {
		return position[a.ID] - position[b.ID]
	})

	return members, nil
}
