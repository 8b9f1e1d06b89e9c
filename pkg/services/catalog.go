package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/agentflow/pkg/eventbus"
	"github.com/dukex/agentflow/pkg/events"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/registry"
)

var ErrComponentNotFound = registry.ErrComponentNotFound

// PaletteSection is one category of the component palette.
type PaletteSection struct {
	Category   models.Category               `json:"category"`
	Components []*models.ComponentDefinition `json:"components"`
}

// Catalog serves the component palette. The AI category follows the external
// model catalog; a catalog failure leaves the other categories available.
type Catalog struct {
	registry  *registry.Registry
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewCatalog creates a catalog service. publisher may be nil.
func NewCatalog(registry *registry.Registry, publisher eventbus.EventPublisher, logger *slog.Logger) *Catalog {
	return &Catalog{
		registry:  registry,
		publisher: publisher,
		logger:    logger.With("module", "catalog_service"),
	}
}

// Palette returns every category in display order. The model catalog is
// loaded first when the cached copy expired.
func (c *Catalog) Palette(ctx context.Context) []PaletteSection {
	if err := c.registry.LoadCatalog(ctx); err != nil {
		c.logger.WarnContext(ctx, "Model catalog unavailable, serving cached AI components", "error", err)
	}

	byCategory := c.registry.ListByCategory()
	sections := make([]PaletteSection, 0, len(models.AllCategories))

	for _, category := range models.AllCategories {
		sections = append(sections, PaletteSection{Category: category, Components: byCategory[category]})
	}

	return sections
}

// Component resolves a single definition.
func (c *Catalog) Component(category models.Category, componentType string) (*models.ComponentDefinition, error) {
	def, ok := c.registry.Get(category, componentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrComponentNotFound, category, componentType)
	}

	return def, nil
}

// Warm loads the model catalog if the cached copy expired.
func (c *Catalog) Warm(ctx context.Context) error {
	return c.registry.LoadCatalog(ctx)
}

// Refresh discards the cached model catalog and fetches it again. The outcome
// is published as a catalog.refreshed event.
func (c *Catalog) Refresh(ctx context.Context) (registry.CatalogStatus, error) {
	c.registry.Invalidate()

	err := c.registry.LoadCatalog(ctx)
	status := c.registry.CatalogStatus()

	event := &events.CatalogRefreshed{
		BaseEvent: events.NewBaseEvent(events.CatalogRefreshedEvent, ""),
		Models:    status.Models,
	}

	if err != nil {
		event.Error = err.Error()
	}

	if c.publisher != nil {
		if perr := c.publisher.Publish(ctx, string(events.CatalogRefreshedEvent), event); perr != nil {
			c.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", perr)
		}
	}

	return status, err
}

// Status reports the model catalog cache state.
func (c *Catalog) Status() registry.CatalogStatus {
	return c.registry.CatalogStatus()
}
