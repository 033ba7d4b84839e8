package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/flowlineio/flowline/pkg/cmd"
	"github.com/flowlineio/flowline/pkg/log"
	"github.com/flowlineio/flowline/pkg/otelhelper"
	"github.com/flowlineio/flowline/pkg/secrets"
	"github.com/flowlineio/flowline/pkg/status"
	"github.com/flowlineio/flowline/pkg/template"
	"github.com/flowlineio/flowline/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "flowline-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Name:    "vault-path",
				Usage:   "Path to the encrypted credentials file",
				Value:   "./credentials.json.enc",
				Sources: cli.EnvVars("VAULT_PATH"),
			},
			&cli.StringFlag{
				Name:     "vault-key",
				Usage:    "Hex-encoded 32-byte key for the credentials file",
				Required: true,
				Sources:  cli.EnvVars("VAULT_KEY"),
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

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("flowline-worker").With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing Flowline worker")

	_, err := otelhelper.NewTracer(ctx, "flowline-worker")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled, exporter unavailable", "error", err)
	}

	registry := cmd.NewRegistry(logger)

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "flowline-worker", command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	statusPublisher, _, err := cmd.NewChannel(command.String("event-bus"), "flowline-status", command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

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

	vault, err := secrets.NewFileVault(command.String("vault-path"), command.String("vault-key"))
	if err != nil {
		return err
	}

	engine := workflow.NewEngine(workflow.Config{
		Persistence: persistence,
		Registry:    registry,
		Templates:   template.NewResolver(),
		Status:      status.NewPublisher(statusPublisher, logger),
		Secrets:     vault,
		EventBus:    eventBus,
		Logger:      logger,
	})

	worker := NewWorker(workerID, engine, eventBus, logger)

	return worker.Start(ctx)
}
