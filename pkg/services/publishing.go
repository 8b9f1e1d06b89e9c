package services

import (
	"context"
	"fmt"

	"github.com/dukex/agentflow/pkg/models"
)

// Publishing moves workflows through their lifecycle statuses.
type Publishing struct {
	workflows *Workflow
}

// NewPublishing creates a new workflow publishing service.
func NewPublishing(workflows *Workflow) *Publishing {
	return &Publishing{
		workflows: workflows,
	}
}

// Activate makes a workflow runnable. It must have a name, at least one node
// and at least one trigger.
func (p *Publishing) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := p.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := validateForActivation(workflow); err != nil {
		return nil, err
	}

	return p.transition(ctx, "Activate", workflow, models.WorkflowStatusActive)
}

// Pause stops an active workflow from being scheduled.
func (p *Publishing) Pause(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := p.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, NewValidationError("Pause", "INVALID_STATUS",
			fmt.Sprintf("cannot pause a %s workflow", workflow.Status), ErrInvalidStatus)
	}

	return p.transition(ctx, "Pause", workflow, models.WorkflowStatusPaused)
}

// Archive makes a workflow read-only. Archiving twice is a no-op.
func (p *Publishing) Archive(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := p.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return p.transition(ctx, "Archive", workflow, models.WorkflowStatusArchived)
}

func (p *Publishing) transition(ctx context.Context, op string, workflow *models.Workflow, status models.WorkflowStatus) (*models.Workflow, error) {
	if workflow.Status == status {
		return workflow, nil
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, &ServiceError{Op: op, Code: "WORKFLOW_ARCHIVED", Err: ErrWorkflowArchived}
	}

	return p.workflows.Update(ctx, workflow.ID, models.WorkflowPatch{Status: &status})
}

// validateForActivation ensures a workflow is ready to run.
func validateForActivation(workflow *models.Workflow) error {
	if workflow == nil {
		return NewValidationError("Activate", "WORKFLOW_NIL", "workflow cannot be nil", ErrWorkflowNil)
	}

	if workflow.Name == "" {
		return NewValidationError("Activate", "NAME_REQUIRED", "workflow name cannot be empty", ErrWorkflowNameRequired)
	}

	if len(workflow.Nodes) == 0 {
		return NewValidationError("Activate", "NODES_REQUIRED", "workflow must have at least one node", ErrNodesRequired)
	}

	for _, node := range workflow.Nodes {
		if node.IsTrigger() {
			return nil
		}
	}

	return NewValidationError("Activate", "TRIGGER_REQUIRED", "workflow must have at least one trigger node", ErrTriggerNodeRequired)
}
