package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/agentflow/pkg/eventbus"
	"github.com/dukex/agentflow/pkg/executor"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/persistence"
	"github.com/dukex/agentflow/pkg/registry"
	"github.com/dukex/agentflow/pkg/services"
	"github.com/dukex/agentflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	executor    executor.Executor
	eventBus    eventbus.EventBus
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

// NewAPI wires the HTTP surface. eventBus and m may be nil.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	executor executor.Executor,
	eventBus eventbus.EventBus,
	m *metrics.Metrics,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		executor:    executor,
		eventBus:    eventBus,
		metrics:     m,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var publisher eventbus.EventPublisher
	if a.eventBus != nil {
		publisher = a.eventBus
	}

	workflowService := services.NewWorkflow(a.persistence, a.logger,
		services.WithNodeValidator(a.registry),
		services.WithPublisher(publisher),
		services.WithMetrics(a.metrics),
	)

	handlers := web.NewAPIHandlers(
		workflowService,
		services.NewPublishing(workflowService),
		services.NewNode(workflowService, a.registry),
		services.NewExecution(workflowService, a.executor, publisher, a.logger),
		services.NewCatalog(a.registry, publisher, a.logger),
		a.validate,
	)

	app := fiber.New()
	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Agentflow API")
	})

	if a.metrics != nil {
		handlers.Mount(app, a.metrics.Handler())
	} else {
		handlers.Mount(app, nil)
	}

	return app
}

// Start serves until ctx is done, then drains in-flight requests.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()
	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "Agentflow API listening", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return app.ShutdownWithContext(shutdownCtx)
}
