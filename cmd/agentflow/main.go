package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/agentflow/pkg/channels/kafka"
	"github.com/dukex/agentflow/pkg/cmd"
	"github.com/dukex/agentflow/pkg/credentials"
	"github.com/dukex/agentflow/pkg/executor"
	"github.com/dukex/agentflow/pkg/gateway"
	"github.com/dukex/agentflow/pkg/log"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/otelhelper"
	"github.com/dukex/agentflow/pkg/registry"
	"github.com/dukex/agentflow/pkg/services"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "agentflow",
		Usage:                 "Build, save and run AI agent workflows",
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
				Name:    "database-url",
				Usage:   "Persistence URL (file path, postgres:// or redis://)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-url",
				Usage:   "Base URL of the AI gateway serving the model catalog and chat completions",
				Sources: cli.EnvVars("AI_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Static API key for the AI gateway; when empty a key is provisioned per user",
				Sources: cli.EnvVars("AI_GATEWAY_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "user-id",
				Usage:   "User the gateway credentials are provisioned for",
				Value:   "agentflow",
				Sources: cli.EnvVars("AI_GATEWAY_USER"),
			},
			&cli.DurationFlag{
				Name:    "catalog-ttl",
				Usage:   "How long a loaded model catalog is reused",
				Value:   registry.DefaultCatalogTTL,
				Sources: cli.EnvVars("CATALOG_TTL"),
			},
			&cli.StringFlag{
				Name:    "catalog-warm-schedule",
				Usage:   "Cron schedule for reloading the model catalog in the background",
				Value:   "@every 1m",
				Sources: cli.EnvVars("CATALOG_WARM_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))
			logger := log.WithModule("api")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Agentflow API")

			tracer := otelhelper.NoopTracer()
			if command.Bool("tracing") {
				t, err := otelhelper.NewTracer(ctx, "agentflow")
				if err != nil {
					return err
				}

				tracer = t
			}

			m := metrics.New()

			gatewayConfig := cmd.GatewayConfig{
				URL:        command.String("gateway-url"),
				APIKey:     command.String("api-key"),
				UserID:     command.String("user-id"),
				CatalogTTL: command.Duration("catalog-ttl"),
			}
			provisioner := cmd.NewProvisioner(gatewayConfig, logger)

			reg, err := cmd.NewRegistry(gatewayConfig, provisioner, tracer, m, logger)
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), kafka.ParseBrokers(command.String("kafka-brokers")), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := subscribeEventLog(ctx, eventBus, logger); err != nil {
				return err
			}

			warmer := NewCatalogWarmer(services.NewCatalog(reg, eventBus, logger), logger)
			if gatewayConfig.URL != "" {
				if err := warmer.Start(ctx, command.String("catalog-warm-schedule")); err != nil {
					return err
				}

				defer warmer.Stop()
			}

			api := NewAPI(
				logger,
				persistence,
				reg,
				newExecutor(gatewayConfig, provisioner, tracer, m, logger),
				eventBus,
				m,
			)

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return err
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("Agentflow API stopped", "error", err)
		os.Exit(1)
	}
}

// newExecutor backs the ai category with the gateway when one is configured;
// without it AI nodes fail with a configuration error.
func newExecutor(
	cfg cmd.GatewayConfig,
	provisioner credentials.Provisioner,
	tracer trace.Tracer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *executor.Registry {
	var ai executor.Executor

	if cfg.URL != "" {
		ai = executor.NewAI(provisioner, func(cred credentials.Credential) executor.InferenceClient {
			return gateway.NewChatClient(cfg.URL, cred, nil)
		}, logger, executor.WithAIMetrics(m))
	}

	return executor.NewDefaultRegistry(ai, logger, executor.WithTracer(tracer), executor.WithMetrics(m))
}
