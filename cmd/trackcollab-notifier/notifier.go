package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/trackcollab/pkg/eventbus"
	"github.com/dukex/trackcollab/pkg/events"
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/robfig/cron/v3"
)

var ErrUnsupportedEvent = errors.New("unsupported event")

// Notification is one message for one user.
type Notification struct {
	Recipient string
	EventType events.EventType
	Text      string
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes every notification as a log line.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, n.Text, "recipient", n.Recipient, "event_type", n.EventType)

	return nil
}

// Notifier drains lifecycle events and reminds owners about requests waiting on them.
type Notifier struct {
	bus      eventbus.EventSubscriber
	requests persistence.RequestRepository
	sender   Sender
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewNotifier(bus eventbus.EventSubscriber, requests persistence.RequestRepository, sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		bus:      bus,
		requests: requests,
		sender:   sender,
		logger:   logger,
	}
}

// notifiedEvents lists the events that produce a notification.
func notifiedEvents() []events.EventType {
	return slices.DeleteFunc(events.AllEventTypes(), func(t events.EventType) bool {
		return t == events.GrantIssuedEvent
	})
}

// Start subscribes to lifecycle events and, when schedule is set, starts the reminder job.
func (n *Notifier) Start(ctx context.Context, schedule string) error {
	for _, eventType := range notifiedEvents() {
		if err := n.bus.Handle(eventType, n.handle); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	if err := n.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	if schedule == "" {
		n.logger.InfoContext(ctx, "Pending-request reminders disabled")

		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid reminder schedule '%s': %w", schedule, err)
	}

	n.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := n.cron.AddFunc(schedule, func() {
		if err := n.Remind(ctx); err != nil {
			n.logger.ErrorContext(ctx, "Failed to send reminders", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add reminder job: %w", err)
	}

	n.cron.Start()
	n.logger.InfoContext(ctx, "Pending-request reminders scheduled", "cron", schedule, "entry_id", entryID)

	return nil
}

// Stop waits for a running reminder job to finish.
func (n *Notifier) Stop() {
	if n.cron != nil {
		<-n.cron.Stop().Done()
	}
}

func (n *Notifier) handle(ctx context.Context, event any) error {
	notification, err := Format(event)
	if err != nil {
		n.logger.WarnContext(ctx, "Skipping event", "error", err)

		return nil
	}

	return n.sender.Send(ctx, notification)
}

// Remind sends each owner one notification with the number of requests waiting on them.
func (n *Notifier) Remind(ctx context.Context) error {
	pending := models.RequestStatusPending

	requests, err := n.requests.List(ctx, persistence.RequestFilter{Status: &pending})
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	counts := make(map[string]int)
	for _, req := range requests {
		counts[req.OwnerID]++
	}

	owners := make([]string, 0, len(counts))
	for owner := range counts {
		owners = append(owners, owner)
	}

	slices.Sort(owners)

	var errs []error

	for _, owner := range owners {
		err := n.sender.Send(ctx, Notification{
			Recipient: owner,
			Text:      fmt.Sprintf("You have %d pending collaboration %s", counts[owner], plural(counts[owner], "request")),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Format renders a lifecycle event as a notification for its recipient.
func Format(event any) (Notification, error) {
	switch e := event.(type) {
	case *events.RequestCreated:
		text := fmt.Sprintf("%s asked to collaborate on %s", e.RequesterID, e.ItemID)
		if len(e.RequestedParts) > 0 {
			text += " (" + strings.Join(e.RequestedParts.Strings(), ", ") + ")"
		}

		return notification(e.RequestEvent, text), nil
	case *events.RequestAccepted:
		text := fmt.Sprintf("%s accepted your request on %s", e.OwnerID, e.ItemID)

		switch {
		case e.GrantFullPackPermissions:
			text += " with access to the whole pack"
		case len(e.AssignedParts) > 0:
			text += " for " + strings.Join(e.AssignedParts.Strings(), ", ")
		}

		return notification(e.RequestEvent, withMessage(text, e.Message)), nil
	case *events.RequestRejected:
		return notification(e.RequestEvent,
			withMessage(fmt.Sprintf("%s declined your request on %s", e.OwnerID, e.ItemID), e.Message)), nil
	case *events.RequestReopened:
		return notification(e.RequestEvent,
			fmt.Sprintf("%s is reconsidering your request on %s", e.OwnerID, e.ItemID)), nil
	case *events.RequestCancelled:
		return notification(e.RequestEvent,
			fmt.Sprintf("%s withdrew their request on %s", e.RequesterID, e.ItemID)), nil
	case *events.BatchCreated:
		n := len(e.RequestIDs)

		return batchNotification(e.BatchEvent,
			fmt.Sprintf("%s asked to collaborate on %d %s", e.RequesterID, n, plural(n, "song"))), nil
	case *events.BatchResolved:
		return batchNotification(e.BatchEvent,
			fmt.Sprintf("%s answered your batch request: %d accepted, %d declined", e.OwnerID, e.Accepted, e.Rejected)), nil
	default:
		return Notification{}, fmt.Errorf("%w: %T", ErrUnsupportedEvent, event)
	}
}

func notification(e events.RequestEvent, text string) Notification {
	return Notification{Recipient: e.Recipient, EventType: e.Type, Text: text}
}

func batchNotification(e events.BatchEvent, text string) Notification {
	return Notification{Recipient: e.Recipient, EventType: e.Type, Text: text}
}

func withMessage(text, message string) string {
	if message == "" {
		return text
	}

	return text + ": " + message
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}

	return word + "s"
}
