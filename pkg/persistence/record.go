package persistence

import (
	"fmt"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/google/uuid"
)

// NewRecord prepares a workflow for its first write: it is copied, given a
// fresh id when it has none, version 1 and both timestamps.
func NewRecord(workflow *models.Workflow, now time.Time) (*models.Workflow, error) {
	if workflow.Status != "" && !workflow.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkflowStatus, workflow.Status)
	}

	record := workflow.Clone()
	normalize(record)

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.Status == "" {
		record.Status = models.WorkflowStatusDraft
	}

	record.CurrentVersion = 1
	record.CreatedAt = now.UTC()
	record.UpdatedAt = record.CreatedAt

	return record, nil
}

// ApplyUpdate returns stored with patch merged in and its version bumped.
// stored is not modified.
func ApplyUpdate(stored *models.Workflow, patch models.WorkflowPatch, now time.Time) (*models.Workflow, error) {
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkflowStatus, *patch.Status)
	}

	record := stored.Clone()
	patch.Apply(record)

	// patch.Apply shares the node and connection slices with the caller.
	record = record.Clone()
	normalize(record)

	record.CurrentVersion = stored.CurrentVersion + 1
	record.UpdatedAt = now.UTC()

	return record, nil
}

func normalize(workflow *models.Workflow) {
	if workflow.Tags == nil {
		workflow.Tags = []string{}
	}

	if workflow.Nodes == nil {
		workflow.Nodes = []*models.WorkflowNode{}
	}

	if workflow.Connections == nil {
		workflow.Connections = []*models.Connection{}
	}
}
