package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/google/uuid"
)

var ErrStartNodeNotFound = errors.New("start node not found")

type RunOptions struct {
	// HaltOnError stops the chain at the first failed node. Otherwise the
	// failure envelope is handed downstream as input.
	HaltOnError bool
}

// Step is one executed node of a run.
type Step struct {
	NodeID string `json:"node_id"`
	Type   string `json:"type"`
	Input  any    `json:"input"`
	Result Result `json:"result"`
}

type Run struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	StartNode  string    `json:"start_node"`
	Steps      []Step    `json:"steps"`
	Halted     bool      `json:"halted"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed reports whether any step failed.
func (r *Run) Failed() bool {
	for _, step := range r.Steps {
		if !step.Result.Success {
			return true
		}
	}

	return false
}

// Runner chains node executions along the workflow connections.
type Runner struct {
	executor Executor
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(executor Executor, logger *slog.Logger) *Runner {
	return &Runner{
		executor: executor,
		logger:   logger.With("module", "runner"),
		now:      time.Now,
	}
}

type pending struct {
	node  *models.WorkflowNode
	input any
}

// Run executes the start node with input, then every node reachable from it
// breadth first. Each node runs once, fed by the output of the predecessor
// that reached it first.
func (r *Runner) Run(ctx context.Context, workflow *models.Workflow, startID string, input any, opts RunOptions) (*Run, error) {
	start := workflow.NodeByID(startID)
	if start == nil {
		return nil, fmt.Errorf("%w: %s", ErrStartNodeNotFound, startID)
	}

	run := &Run{
		ID:         uuid.NewString(),
		WorkflowID: workflow.ID,
		StartNode:  startID,
		StartedAt:  r.now().UTC(),
	}

	queue := []pending{{node: start, input: input}}
	visited := map[string]bool{startID: true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			run.FinishedAt = r.now().UTC()

			return run, err
		}

		current := queue[0]
		queue = queue[1:]

		result := r.executor.Execute(ctx, current.node, current.input)
		run.Steps = append(run.Steps, Step{
			NodeID: current.node.ID,
			Type:   current.node.Type,
			Input:  current.input,
			Result: result,
		})

		next := result.Data
		if !result.Success {
			r.logger.WarnContext(ctx, "Node failed", "run_id", run.ID, "node_id", current.node.ID, "code", result.Code())

			if opts.HaltOnError {
				run.Halted = true

				break
			}

			next = result
		}

		for _, downstream := range graph.Downstream(workflow, current.node.ID) {
			if visited[downstream.ID] {
				continue
			}

			visited[downstream.ID] = true
			queue = append(queue, pending{node: downstream, input: next})
		}
	}

	run.FinishedAt = r.now().UTC()
	r.logger.InfoContext(ctx, "Run finished", "run_id", run.ID, "workflow_id", workflow.ID, "steps", len(run.Steps), "halted", run.Halted)

	return run, nil
}
