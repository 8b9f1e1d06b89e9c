package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/agentflow/pkg/services"
	"github.com/robfig/cron/v3"
)

// CatalogWarmer reloads the model catalog on a schedule so the palette rarely
// waits on the gateway.
type CatalogWarmer struct {
	catalog *services.Catalog
	logger  *slog.Logger
	cron    *cron.Cron
}

func NewCatalogWarmer(catalog *services.Catalog, logger *slog.Logger) *CatalogWarmer {
	return &CatalogWarmer{
		catalog: catalog,
		logger:  logger.With("module", "catalog_warmer"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
	}
}

// Start schedules the warm job and runs it once right away.
func (w *CatalogWarmer) Start(ctx context.Context, schedule string) error {
	if _, err := w.cron.AddFunc(schedule, func() { w.warm(ctx) }); err != nil {
		return fmt.Errorf("invalid catalog warm schedule %q: %w", schedule, err)
	}

	w.cron.Start()
	go w.warm(ctx)

	w.logger.InfoContext(ctx, "Catalog warmer started", "schedule", schedule)

	return nil
}

// Stop waits for a running warm job to finish.
func (w *CatalogWarmer) Stop() {
	<-w.cron.Stop().Done()
}

func (w *CatalogWarmer) warm(ctx context.Context) {
	if err := w.catalog.Warm(ctx); err != nil {
		w.logger.WarnContext(ctx, "Catalog warm failed", "error", err)

		return
	}

	w.logger.DebugContext(ctx, "Catalog warmed", "models", w.catalog.Status().Models)
}
