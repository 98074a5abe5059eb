// Package items resolves song metadata owned by the tracker. The collaboration core only
// ever reads items through the Lookup interface.
package items

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/trackcollab/pkg/models"
)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrInvalidCatalog = errors.New("invalid item catalog")
)

// Lookup returns the current state of an item or ErrItemNotFound.
type Lookup interface {
	Item(ctx context.Context, id string) (*models.Item, error)
}

// ItemError carries the item id alongside a lookup failure.
type ItemError struct {
	ItemID string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func IsItemNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// record is the wire shape shared by catalog files and the remote tracker API.
// Stage accepts identifiers or UI labels. Step names outside the part vocabulary are logged
// and dropped so one stray step never hides the rest of the item.
type record struct {
	ID      string          `json:"id"`
	OwnerID string          `json:"owner_id"`
	Stage   string          `json:"stage"`
	Steps   map[string]bool `json:"steps"`
	PackID  string          `json:"pack_id"`
}

func (r record) toItem(logger *slog.Logger) (*models.Item, error) {
	stage, err := models.ParseStage(r.Stage)
	if err != nil {
		return nil, &ItemError{ItemID: r.ID, Err: err}
	}

	steps := make(map[models.Part]bool, len(r.Steps))

	for name, done := range r.Steps {
		part, err := models.ParsePart(name)
		if err != nil {
			logger.Warn("Skipping unknown step", "item_id", r.ID, "step", name)

			continue
		}

		steps[part] = done
	}

	return &models.Item{
		ID:      r.ID,
		OwnerID: r.OwnerID,
		Stage:   stage,
		Steps:   steps,
		PackID:  r.PackID,
	}, nil
}
