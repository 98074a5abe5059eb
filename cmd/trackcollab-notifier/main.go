// Package main provides the trackcollab notifier: it turns lifecycle events into
// notifications and reminds owners about requests waiting on them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/trackcollab/pkg/cmd"
	"github.com/dukex/trackcollab/pkg/log"
	"github.com/dukex/trackcollab/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "trackcollab-notifier"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Deliver collaboration notifications",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (postgres://, redis://, sqlite://, file:// or a directory)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "reminder-schedule",
				Usage:   "Cron expression for pending-request reminders (empty disables them)",
				Value:   "0 9 * * *",
				Sources: cli.EnvVars("REMINDER_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("notifier")

	logger.InfoContext(ctx, "Initializing trackcollab notifier")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command.Bool("tracing") {
		shutdown, err := otelhelper.Setup(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	notifier := NewNotifier(eventBus, persistence.RequestRepository(), NewLogSender(logger), logger)

	if err := notifier.Start(ctx, command.String("reminder-schedule")); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Notifier started")

	<-ctx.Done()

	logger.InfoContext(ctx, "Shutting down notifier")
	notifier.Stop()

	return nil
}
