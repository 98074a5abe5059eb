package authz

import (
	"context"

	"github.com/dukex/trackcollab/pkg/eventbus"
	"github.com/dukex/trackcollab/pkg/events"
	"github.com/dukex/trackcollab/pkg/models"
)

// EventSink forwards grants to the authorization layer as grant.issued events keyed by
// the grantee, so all grants for one actor stay ordered on a partitioned transport.
type EventSink struct {
	publisher eventbus.EventPublisher
}

func NewEventSink(publisher eventbus.EventPublisher) *EventSink {
	return &EventSink{publisher: publisher}
}

func (s *EventSink) GrantParts(ctx context.Context, grant models.PartGrant) error {
	return s.publisher.Publish(ctx, grant.ActorID, events.NewPartGrantIssued(grant))
}

func (s *EventSink) GrantPack(ctx context.Context, grant models.PackGrant) error {
	return s.publisher.Publish(ctx, grant.ActorID, events.NewPackGrantIssued(grant))
}
