package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/trackcollab/pkg/events"
	"github.com/dukex/trackcollab/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var ErrUnknownEventType = errors.New("unknown event type")

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	logger        *slog.Logger
	tracer        trace.Tracer
	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "eventbus"),
		tracer:        otel.Tracer("trackcollab.eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))

	eb.logger.DebugContext(ctx, "Publishing event", "key", key, "event_type", event.GetType())

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))

	msgCtx, span := eb.tracer.Start(msgCtx, "eventbus.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.type", string(eventType)),
			attribute.String("event.key", msg.Metadata.Get(events.EventMetadataKey)),
		),
	)
	defer span.End()

	event, err := decodeEvent(eventType, msg.Payload)
	if err != nil {
		eb.logger.ErrorContext(msgCtx, "Failed to decode event", "error", err, "event_type", eventType)
		otelhelper.SetError(span, err)
		// A payload that cannot be decoded will never succeed, so it is dropped.
		msg.Ack()

		return
	}

	if err := handler(msgCtx, event); err != nil {
		eb.logger.ErrorContext(msgCtx, "Failed to handle event", "error", err, "event_type", eventType)
		otelhelper.SetError(span, err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func decodeEvent(eventType events.EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case events.RequestCreatedEvent:
		event = &events.RequestCreated{}
	case events.RequestAcceptedEvent:
		event = &events.RequestAccepted{}
	case events.RequestRejectedEvent:
		event = &events.RequestRejected{}
	case events.RequestReopenedEvent:
		event = &events.RequestReopened{}
	case events.RequestCancelledEvent:
		event = &events.RequestCancelled{}
	case events.BatchCreatedEvent:
		event = &events.BatchCreated{}
	case events.BatchResolvedEvent:
		event = &events.BatchResolved{}
	case events.GrantIssuedEvent:
		event = &events.GrantIssued{}
	default:
		return nil, ErrUnknownEventType
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}

	return event, nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
