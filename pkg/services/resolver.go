package services

import (
	"context"
	"fmt"

	"github.com/dukex/trackcollab/pkg/items"
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
)

// Resolver computes which parts of an item can still be requested.
type Resolver struct {
	items    items.Lookup
	requests persistence.RequestRepository
}

func NewResolver(lookup items.Lookup, requests persistence.RequestRepository) *Resolver {
	return &Resolver{items: lookup, requests: requests}
}

// AvailableParts returns all steps minus completed steps minus the parts assigned to every
// accepted request on the item, in canonical order. Items that are not in progress have no
// part granularity and yield an empty set.
func (r *Resolver) AvailableParts(ctx context.Context, itemID string) (models.PartSet, error) {
	item, err := r.item(ctx, "available_parts", itemID)
	if err != nil {
		return nil, err
	}

	return r.availableFor(ctx, item)
}

func (r *Resolver) item(ctx context.Context, op, itemID string) (*models.Item, error) {
	item, err := r.items.Item(ctx, itemID)
	if err != nil {
		if items.IsItemNotFound(err) {
			return nil, NewNotFoundError(op, "item_not_found", "item "+itemID+" not found", ErrItemNotFound)
		}

		return nil, fmt.Errorf("failed to look up item %s: %w", itemID, err)
	}

	return item, nil
}

func (r *Resolver) availableFor(ctx context.Context, item *models.Item) (models.PartSet, error) {
	if !item.InProgress() {
		return models.PartSet{}, nil
	}

	claimed, err := r.claimed(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	return item.AllSteps().Minus(item.CompletedSteps()).Minus(claimed), nil
}

// claimed unions the assigned parts of every accepted request on the item.
func (r *Resolver) claimed(ctx context.Context, itemID string) (models.PartSet, error) {
	accepted := models.RequestStatusAccepted

	requests, err := r.requests.List(ctx, persistence.RequestFilter{ItemID: itemID, Status: &accepted})
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted requests for %s: %w", itemID, err)
	}

	claimed := models.PartSet{}
	for _, req := range requests {
		claimed = claimed.Union(req.AssignedParts)
	}

	return claimed, nil
}
