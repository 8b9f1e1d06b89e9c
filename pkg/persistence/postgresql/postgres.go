// Package postgresql provides PostgreSQL persistence for workflows. Nodes and
// connections live in their own tables and are rewritten on every update.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
	"github.com/dukex/agentflow/pkg/persistence/sqlbase"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // registers the postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
}

// NewPersistence connects, pings and migrates the database.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger, time.Now),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// List returns all workflows, newest first.
func (p *Persistence) List(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx)
}

// Get returns a workflow by its ID.
func (p *Persistence) Get(ctx context.Context, id string) (*models.Workflow, error) {
	if !validID(id) {
		return nil, persistence.NotFound("Get", id)
	}

	return p.workflowRepo.GetByID(ctx, id)
}

// Create inserts a new workflow.
func (p *Persistence) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	return p.workflowRepo.Create(ctx, workflow)
}

// Update merges patch into a stored workflow.
func (p *Persistence) Update(ctx context.Context, id string, patch models.WorkflowPatch) (*models.Workflow, error) {
	if !validID(id) {
		return nil, persistence.NotFound("Update", id)
	}

	return p.workflowRepo.Update(ctx, id, patch)
}

// Remove deletes a workflow; nodes and connections cascade.
func (p *Persistence) Remove(ctx context.Context, id string) error {
	if !validID(id) {
		return persistence.NotFound("Remove", id)
	}

	return p.workflowRepo.Delete(ctx, id)
}

// validID reports whether id can name a row; the id column is a UUID.
func validID(id string) bool {
	_, err := uuid.Parse(id)

	return err == nil
}
