package graph

import (
	"errors"
	"fmt"

	"github.com/dukex/agentflow/pkg/models"
)

// Validate checks a whole workflow document against the graph invariants:
// unique ids, known categories, and every connection well formed (no self
// loop, no duplicate pair, no trigger target, both endpoints present).
func Validate(workflow *models.Workflow) error {
	var errs []error

	nodes := make(map[string]*models.WorkflowNode, len(workflow.Nodes))

	for i, node := range workflow.Nodes {
		if node == nil {
			errs = append(errs, fmt.Errorf("%w: node at index %d", ErrNilElement, i))

			continue
		}

		if _, exists := nodes[node.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNodeID, node.ID))

			continue
		}

		if !node.Category.IsValid() {
			errs = append(errs, fmt.Errorf("%w: node %s has category %q", ErrInvalidCategory, node.ID, node.Category))
		}

		nodes[node.ID] = node
	}

	ids := make(map[string]struct{}, len(workflow.Connections))
	pairs := make(map[[2]string]struct{}, len(workflow.Connections))

	for i, conn := range workflow.Connections {
		if conn == nil {
			errs = append(errs, fmt.Errorf("%w: connection at index %d", ErrNilElement, i))

			continue
		}

		if _, exists := ids[conn.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateConnectionID, conn.ID))
		}

		ids[conn.ID] = struct{}{}

		if err := checkEdge(nodes, pairs, conn); err != nil {
			errs = append(errs, &RejectedError{Source: conn.Source, Target: conn.Target, Err: err})
		}
	}

	return errors.Join(errs...)
}

func checkEdge(nodes map[string]*models.WorkflowNode, pairs map[[2]string]struct{}, conn *models.Connection) error {
	if conn.Source == conn.Target {
		return ErrSelfLoop
	}

	source, target := nodes[conn.Source], nodes[conn.Target]
	if source == nil || target == nil {
		return ErrUnknownNode
	}

	if target.IsTrigger() {
		return ErrTriggerTarget
	}

	pair := [2]string{conn.Source, conn.Target}
	if _, exists := pairs[pair]; exists {
		return ErrDuplicateConnection
	}

	pairs[pair] = struct{}{}

	return nil
}

// Upstream returns the nodes with a connection into id, in connection order.
func Upstream(workflow *models.Workflow, id string) []*models.WorkflowNode {
	var out []*models.WorkflowNode

	for _, conn := range workflow.Connections {
		if conn == nil || conn.Target != id {
			continue
		}

		if node := workflow.NodeByID(conn.Source); node != nil {
			out = append(out, node)
		}
	}

	return out
}

// Downstream returns the nodes fed by id, in connection order.
func Downstream(workflow *models.Workflow, id string) []*models.WorkflowNode {
	var out []*models.WorkflowNode

	for _, conn := range workflow.Connections {
		if conn == nil || conn.Source != id {
			continue
		}

		if node := workflow.NodeByID(conn.Target); node != nil {
			out = append(out, node)
		}
	}

	return out
}
