// Package persistence provides the storage abstraction for workflows.
package persistence

import (
	"context"

	"github.com/dukex/agentflow/pkg/models"
)

// Persistence stores workflows. Implementations own the workflow id and
// CurrentVersion: Create assigns both, Update bumps the version.
type Persistence interface {
	// List returns every stored workflow, newest first.
	List(ctx context.Context) ([]*models.Workflow, error)
	// Get returns ErrWorkflowNotFound when id is unknown.
	Get(ctx context.Context, id string) (*models.Workflow, error)
	Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	// Update returns ErrWorkflowNotFound when id is unknown.
	Update(ctx context.Context, id string, patch models.WorkflowPatch) (*models.Workflow, error)
	// Remove returns ErrWorkflowNotFound when id is unknown.
	Remove(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
