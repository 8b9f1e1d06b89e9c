package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/agentflow/pkg/eventbus"
	"github.com/dukex/agentflow/pkg/events"
	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
	"github.com/dukex/agentflow/pkg/registry"
	"github.com/go-playground/validator/v10"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NodeValidator checks a node against its component definition.
// *registry.Registry satisfies it.
type NodeValidator interface {
	ValidateNode(node *models.WorkflowNode) error
}

type WorkflowOption func(*Workflow)

// WithNodeValidator enables schema validation of node data on save.
func WithNodeValidator(v NodeValidator) WorkflowOption {
	return func(w *Workflow) {
		w.nodes = v
	}
}

// WithPublisher publishes workflow.saved and workflow.deleted events.
func WithPublisher(p eventbus.EventPublisher) WorkflowOption {
	return func(w *Workflow) {
		w.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) WorkflowOption {
	return func(w *Workflow) {
		w.metrics = m
	}
}

type Workflow struct {
	persistence persistence.Persistence
	nodes       NodeValidator
	publisher   eventbus.EventPublisher
	metrics     *metrics.Metrics
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, logger *slog.Logger, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "workflow_service"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	Owner  string
	Tag    string
	Status *models.WorkflowStatus
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int                `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
	Limit       int                `json:"limit"`
	Offset      int                `json:"offset"`
}

// ListWorkflows filters and paginates the stored workflows, newest first.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, NewValidationError("ListWorkflows", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	if req.Status != nil && !req.Status.IsValid() {
		return nil, NewValidationError("ListWorkflows", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", *req.Status), ErrInvalidStatus)
	}

	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}

	all, err := w.persistence.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	filtered := slices.DeleteFunc(all, func(workflow *models.Workflow) bool {
		if req.Owner != "" && workflow.Owner != req.Owner {
			return true
		}

		if req.Status != nil && workflow.Status != *req.Status {
			return true
		}

		return req.Tag != "" && !slices.Contains(workflow.Tags, req.Tag)
	})

	response := &ListWorkflowsResponse{
		Workflows:  []*models.Workflow{},
		TotalCount: len(filtered),
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	if req.Offset >= len(filtered) {
		return response, nil
	}

	end := min(req.Offset+req.Limit, len(filtered))
	response.Workflows = filtered[req.Offset:end]
	response.HasNextPage = end < len(filtered)

	return response, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Get(ctx, id)
}

// Create validates and stores a new workflow. An empty status defaults to draft.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, NewValidationError("Create", "WORKFLOW_NIL", "workflow cannot be nil", ErrWorkflowNil)
	}

	if err := w.validate.StructPartial(workflow, "Nodes", "Connections"); err != nil {
		return nil, NewValidationError("Create", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	workflow = workflow.Clone()
	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := w.Validate(workflow); err != nil {
		return nil, err
	}

	created, err := w.persistence.Create(ctx, workflow)
	w.metrics.WorkflowPersisted("create", err)

	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", created.ID, "nodes", len(created.Nodes))
	w.publishSaved(ctx, created, true)

	return created, nil
}

// Update validates the patched workflow and stores the patch.
func (w *Workflow) Update(ctx context.Context, workflowID string, patch models.WorkflowPatch) (*models.Workflow, error) {
	if err := w.validate.Struct(patch); err != nil {
		return nil, NewValidationError("Update", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	existing, err := w.persistence.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	candidate := existing.Clone()
	patch.Apply(candidate)

	if err := w.Validate(candidate); err != nil {
		return nil, err
	}

	updated, err := w.persistence.Update(ctx, workflowID, patch)
	w.metrics.WorkflowPersisted("update", err)

	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow updated", "workflow_id", updated.ID, "version", updated.CurrentVersion)
	w.publishSaved(ctx, updated, false)

	return updated, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	err := w.persistence.Remove(ctx, workflowID)
	w.metrics.WorkflowPersisted("delete", err)

	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return err
		}

		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", workflowID)
	w.publish(ctx, workflowID, &events.WorkflowDeleted{BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, workflowID)})

	return nil
}

// Validate checks struct tags, the graph invariants and, when a node
// validator is configured, each node's data against its component schema.
// AI nodes whose model is not in the current catalog are accepted: the
// catalog may be temporarily unavailable.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return NewValidationError("Validate", "WORKFLOW_NIL", "workflow cannot be nil", ErrWorkflowNil)
	}

	if err := w.validate.Struct(workflow); err != nil {
		return NewValidationError("Validate", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	if err := workflow.Validate(); err != nil {
		return NewValidationError("Validate", "INVALID_STATUS", err.Error(), ErrInvalidStatus)
	}

	if err := graph.Validate(workflow); err != nil {
		return NewValidationError("Validate", "INVALID_GRAPH", err.Error(), errors.Join(ErrInvalidWorkflow, err))
	}

	if w.nodes == nil {
		return nil
	}

	for _, node := range workflow.Nodes {
		err := w.nodes.ValidateNode(node)

		switch {
		case err == nil:
		case errors.Is(err, registry.ErrComponentNotFound) && node.Category == models.CategoryAI:
			w.logger.Warn("AI node references a model outside the catalog", "node_id", node.ID, "type", node.Type)
		case errors.Is(err, registry.ErrComponentNotFound):
			return NewValidationError("Validate", "UNKNOWN_COMPONENT", err.Error(), errors.Join(ErrUnknownComponent, err))
		default:
			return NewValidationError("Validate", "INVALID_NODE_DATA", err.Error(), errors.Join(ErrInvalidNodeData, err))
		}
	}

	return nil
}

func (w *Workflow) publishSaved(ctx context.Context, workflow *models.Workflow, created bool) {
	w.publish(ctx, workflow.ID, &events.WorkflowSaved{
		BaseEvent: events.NewBaseEvent(events.WorkflowSavedEvent, workflow.ID),
		Name:      workflow.Name,
		Version:   workflow.CurrentVersion,
		Created:   created,
		Nodes:     len(workflow.Nodes),
	})
}

func (w *Workflow) publish(ctx context.Context, key string, event eventbus.Event) {
	if w.publisher == nil {
		return
	}

	if err := w.publisher.Publish(ctx, key, event); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
