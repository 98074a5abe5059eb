// Package authz turns accepted collaboration requests into grants for the
// authorization layer.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/trackcollab/pkg/models"
)

var (
	ErrNotAccepted = errors.New("request is not accepted")
	ErrNoPack      = errors.New("item does not belong to a pack")
)

// Sink receives grants. Implementations must be safe for concurrent use.
type Sink interface {
	GrantParts(ctx context.Context, grant models.PartGrant) error
	GrantPack(ctx context.Context, grant models.PackGrant) error
}

// Materializer emits exactly one grant per accepted request.
type Materializer struct {
	sink Sink
	now  func() time.Time
}

func NewMaterializer(sink Sink) *Materializer {
	return &Materializer{
		sink: sink,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Materialize issues a pack grant when the full-pack flag is set, ignoring any assigned
// parts, and a part grant otherwise. The returned kind tells which one was sent.
func (m *Materializer) Materialize(ctx context.Context, req *models.CollaborationRequest, item *models.Item) (models.GrantKind, error) {
	if req.Status != models.RequestStatusAccepted {
		return "", fmt.Errorf("materialize %s: %w", req.ID, ErrNotAccepted)
	}

	if req.GrantFullPackPermissions {
		if item.PackID == "" {
			return "", fmt.Errorf("materialize %s: %w", req.ID, ErrNoPack)
		}

		err := m.sink.GrantPack(ctx, models.PackGrant{
			RequestID: req.ID,
			ActorID:   req.RequesterID,
			PackID:    item.PackID,
			GrantedAt: m.now(),
		})
		if err != nil {
			return "", fmt.Errorf("grant pack %s to %s: %w", item.PackID, req.RequesterID, err)
		}

		return models.GrantKindPack, nil
	}

	err := m.sink.GrantParts(ctx, models.PartGrant{
		RequestID:    req.ID,
		ActorID:      req.RequesterID,
		ItemID:       req.ItemID,
		AllowedSteps: req.AssignedParts,
		GrantedAt:    m.now(),
	})
	if err != nil {
		return "", fmt.Errorf("grant parts on %s to %s: %w", req.ItemID, req.RequesterID, err)
	}

	return models.GrantKindPart, nil
}
