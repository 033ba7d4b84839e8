package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/flowlineio/flowline/pkg/cmd"
	"github.com/flowlineio/flowline/pkg/log"
	"github.com/flowlineio/flowline/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "flowline-api",
		EnableShellCompletion: true,
		Usage:                 "Start the Flowline REST API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   8080,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("flowline-api")

	logger.InfoContext(ctx, "Initializing Flowline API")

	_, err := otelhelper.NewTracer(ctx, "flowline-api")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled, exporter unavailable", "error", err)
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowline-api", command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	api := NewAPI(logger, persistence, eventBus)

	return api.Start(command.Int("port"))
}
