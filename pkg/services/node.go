package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/models"
)

// CreateNodeRequest places a new component instance. Data is merged over the
// component defaults.
type CreateNodeRequest struct {
	Category models.Category `json:"category" validate:"required"`
	Type     string          `json:"type"     validate:"required"`
	Position models.Position `json:"position"`
	Label    *string         `json:"label,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
}

// UpdateNodeRequest is a partial node update; Data is merged shallowly.
type UpdateNodeRequest struct {
	Data     map[string]any   `json:"data,omitempty"`
	Position *models.Position `json:"position,omitempty"`
	Label    *string          `json:"label,omitempty"`
}

// Node edits the graph of a stored workflow one mutation at a time. Every
// mutation goes through graph.Graph so the stored document keeps the same
// invariants as an editor session, and is saved through the workflow service.
type Node struct {
	workflows   *Workflow
	definitions graph.Definitions
}

// NewNode creates a new node service. Connection policy is enforced against
// definitions.
func NewNode(workflows *Workflow, definitions graph.Definitions) *Node {
	return &Node{
		workflows:   workflows,
		definitions: definitions,
	}
}

// GetNode retrieves a specific node from the specified workflow.
func (n *Node) GetNode(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	workflow, err := n.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	return node, nil
}

// CreateNode adds a node to the specified workflow.
func (n *Node) CreateNode(ctx context.Context, workflowID string, req CreateNodeRequest) (*models.WorkflowNode, error) {
	if err := n.workflows.validate.Struct(req); err != nil {
		return nil, NewValidationError("CreateNode", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	def, ok := n.definitions.Get(req.Category, req.Type)
	if !ok {
		return nil, NewValidationError("CreateNode", "UNKNOWN_COMPONENT",
			fmt.Sprintf("unknown component %s/%s", req.Category, req.Type), ErrUnknownComponent)
	}

	var created *models.WorkflowNode

	err := n.edit(ctx, "CreateNode", workflowID, func(g *graph.Graph) error {
		node := g.AddNode(def, req.Position)
		g.UpdateNode(node.ID, graph.NodePatch{Data: req.Data, Label: req.Label})
		created = node

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created.Clone(), nil
}

// UpdateNode merges req into an existing node.
func (n *Node) UpdateNode(ctx context.Context, workflowID, nodeID string, req UpdateNodeRequest) (*models.WorkflowNode, error) {
	var updated *models.WorkflowNode

	err := n.edit(ctx, "UpdateNode", workflowID, func(g *graph.Graph) error {
		node, ok := g.Node(nodeID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}

		g.UpdateNode(nodeID, graph.NodePatch{Data: req.Data, Position: req.Position, Label: req.Label})
		updated = node

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated.Clone(), nil
}

// DeleteNode removes a node and every connection touching it.
func (n *Node) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	return n.edit(ctx, "DeleteNode", workflowID, func(g *graph.Graph) error {
		if _, ok := g.Node(nodeID); !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}

		g.RemoveNode(nodeID)

		return nil
	})
}

// CreateConnection links source to target. Rejections carry the graph reason,
// e.g. graph.ErrSelfLoop, along with ErrConnectionRejected.
func (n *Node) CreateConnection(ctx context.Context, workflowID, source, target string) (*models.Connection, error) {
	var created *models.Connection

	err := n.edit(ctx, "CreateConnection", workflowID, func(g *graph.Graph) error {
		conn, err := g.AddConnection(source, target)
		if err != nil {
			return NewValidationError("CreateConnection", "CONNECTION_REJECTED", err.Error(), errors.Join(ErrConnectionRejected, err))
		}

		created = conn

		return nil
	})
	if err != nil {
		return nil, err
	}

	c := *created

	return &c, nil
}

// DeleteConnection removes a connection by id.
func (n *Node) DeleteConnection(ctx context.Context, workflowID, connectionID string) error {
	return n.edit(ctx, "DeleteConnection", workflowID, func(g *graph.Graph) error {
		before := len(g.Connections())

		g.RemoveConnection(connectionID)

		if len(g.Connections()) == before {
			return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
		}

		return nil
	})
}

func (n *Node) edit(ctx context.Context, op, workflowID string, mutate func(g *graph.Graph) error) error {
	workflow, err := n.workflows.FetchByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return &ServiceError{Op: op, Code: "WORKFLOW_ARCHIVED", Err: ErrWorkflowArchived}
	}

	g := graph.New(workflow, graph.WithPolicy(n.definitions))

	if err := mutate(g); err != nil {
		return err
	}

	_, err = n.workflows.Update(ctx, workflowID, models.PatchFromWorkflow(g.Serialize()))

	return err
}
