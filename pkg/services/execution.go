package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentflow/pkg/eventbus"
	"github.com/dukex/agentflow/pkg/events"
	"github.com/dukex/agentflow/pkg/executor"
	"github.com/dukex/agentflow/pkg/models"
)

// RunRequest starts a chain at StartNode.
type RunRequest struct {
	StartNode   string `json:"start_node"    validate:"required"`
	Input       any    `json:"input"`
	HaltOnError bool   `json:"halt_on_error"`
}

// Execution runs nodes of stored workflows and reports each execution as a
// node.executed event.
type Execution struct {
	workflows *Workflow
	executor  executor.Executor
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecution creates an execution service. publisher may be nil.
func NewExecution(workflows *Workflow, exec executor.Executor, publisher eventbus.EventPublisher, logger *slog.Logger) *Execution {
	return &Execution{
		workflows: workflows,
		executor:  exec,
		publisher: publisher,
		logger:    logger.With("module", "execution_service"),
		now:       time.Now,
	}
}

// ExecuteNode runs a single node with input. A failed execution is returned as
// a failure envelope, not as an error.
func (e *Execution) ExecuteNode(ctx context.Context, workflowID, nodeID string, input any) (executor.Result, error) {
	workflow, err := e.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return executor.Result{}, err
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return executor.Result{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	started := e.now()
	result := e.executor.Execute(ctx, node, input)

	e.publishNode(ctx, workflowID, "", node, result, e.now().Sub(started))

	return result, nil
}

// Run executes the chain starting at req.StartNode.
func (e *Execution) Run(ctx context.Context, workflowID string, req RunRequest) (*executor.Run, error) {
	if err := e.workflows.validate.Struct(req); err != nil {
		return nil, NewValidationError("Run", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	workflow, err := e.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	durations := make(map[string]time.Duration, len(workflow.Nodes))

	timed := executor.Func(func(ctx context.Context, node *models.WorkflowNode, input any) executor.Result {
		started := e.now()
		result := e.executor.Execute(ctx, node, input)
		durations[node.ID] = e.now().Sub(started)

		return result
	})

	run, err := executor.NewRunner(timed, e.logger).Run(ctx, workflow, req.StartNode, req.Input, executor.RunOptions{HaltOnError: req.HaltOnError})
	if errors.Is(err, executor.ErrStartNodeNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, req.StartNode)
	}

	if run == nil {
		return nil, err
	}

	for _, step := range run.Steps {
		if node := workflow.NodeByID(step.NodeID); node != nil {
			e.publishNode(ctx, workflowID, run.ID, node, step.Result, durations[step.NodeID])
		}
	}

	e.publish(ctx, workflowID, &events.RunCompleted{
		BaseEvent:  events.NewBaseEvent(events.RunCompletedEvent, workflowID),
		RunID:      run.ID,
		StartNode:  run.StartNode,
		Steps:      len(run.Steps),
		Failed:     run.Failed(),
		Halted:     run.Halted,
		DurationMs: run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	})

	return run, err
}

func (e *Execution) publishNode(ctx context.Context, workflowID, runID string, node *models.WorkflowNode, result executor.Result, elapsed time.Duration) {
	e.publish(ctx, workflowID, &events.NodeExecuted{
		BaseEvent:  events.NewBaseEvent(events.NodeExecutedEvent, workflowID),
		RunID:      runID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Category:   string(node.Category),
		Success:    result.Success,
		ErrorCode:  result.Code(),
		DurationMs: elapsed.Milliseconds(),
	})
}

func (e *Execution) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
