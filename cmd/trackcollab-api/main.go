package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/trackcollab/pkg/cmd"
	"github.com/dukex/trackcollab/pkg/log"
	"github.com/dukex/trackcollab/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "trackcollab-api"
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Serve collaboration requests between track authors",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (postgres://, redis://, sqlite://, file:// or a directory)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "items-url",
				Usage:    "Tracker API base URL or path to a JSON/YAML item catalog",
				Required: true,
				Sources:  cli.EnvVars("ITEMS_URL"),
			},
			&cli.StringFlag{
				Name:    "authz-sink",
				Usage:   "Where grants are sent (events, memory)",
				Value:   "events",
				Sources: cli.EnvVars("AUTHZ_SINK"),
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

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing trackcollab API")

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
		if err := persistence.Close(ctx); err != nil {
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

	lookup, err := cmd.NewItemLookup(command.String("items-url"), logger)
	if err != nil {
		return err
	}

	sink, err := cmd.NewAuthzSink(command.String("authz-sink"), eventBus)
	if err != nil {
		return err
	}

	api := NewAPI(logger, persistence, lookup, sink, eventBus)

	return api.Start(int(command.Int("port")))
}
