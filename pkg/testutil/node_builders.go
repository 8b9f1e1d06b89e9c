// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:       uuid.New().String(),
		Type:     "log",
		Category: models.CategoryOutput,
		Label:    "Test Node",
		Data:     map[string]any{"message": "test", "level": "info"},
		Position: models.Position{X: 100, Y: 200},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTriggerNode configures the node as a webhook trigger.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = "webhook"
		n.Category = models.CategoryTriggers
		n.Label = "Webhook"
		n.Data = map[string]any{
			"path":   "/webhook/test",
			"method": "POST",
		}
	}
}

// WithAINode configures the node as an AI node backed by model.
func WithAINode(model string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = "ai-" + model
		n.Category = models.CategoryAI
		n.Label = model
		n.Data = map[string]any{
			"model":          model,
			"provider":       "openai",
			"prompt":         "{{input}}",
			"temperature":    0.7,
			"maxTokens":      256.0,
			"responseFormat": "text",
		}
	}
}

// WithData sets the node parameter bag.
func WithData(data map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Data = data
	}
}

// WithLabel sets the node label.
func WithLabel(label string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Label = label
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Position = models.Position{X: x, Y: y}
	}
}

// WithType sets the node type and category.
func WithType(category models.Category, nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Category = category
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// CreateTestWorkflow creates an unsaved test workflow without nodes.
func CreateTestWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Tags:        []string{"test"},
		Status:      models.WorkflowStatusDraft,
		Owner:       "test-user",
		Nodes:       []*models.WorkflowNode{},
		Connections: []*models.Connection{},
	}
}

// CreateTestWorkflowWithNodes creates a workflow with a trigger feeding a log node.
func CreateTestWorkflowWithNodes() *models.Workflow {
	workflow := CreateTestWorkflow()

	triggerNode := CreateTestNode(WithTriggerNode(), WithID("trigger-1"))
	actionNode := CreateTestNode(WithID("action-1"), WithLabel("Log Action"))

	workflow.Nodes = []*models.WorkflowNode{triggerNode, actionNode}
	workflow.Connections = []*models.Connection{
		CreateTestConnection("trigger-1", "action-1"),
	}

	return workflow
}

// CreateTestConnection creates a test connection between two nodes.
func CreateTestConnection(sourceNodeID, targetNodeID string) *models.Connection {
	return &models.Connection{
		ID:     uuid.New().String(),
		Source: sourceNodeID,
		Target: targetNodeID,
	}
}

// SequentialIDs returns a deterministic id generator: prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	next := 0

	return func() string {
		next++

		return fmt.Sprintf("%s-%d", prefix, next)
	}
}

// Definition returns a minimal component definition of the given category.
func Definition(category models.Category, componentType string) *models.ComponentDefinition {
	return &models.ComponentDefinition{
		Type:           componentType,
		Category:       category,
		Label:          componentType,
		DefaultData:    map[string]any{"label": componentType},
		AllowedInputs:  models.AnyConnection(),
		AllowedOutputs: models.AnyConnection(),
		MaxInputs:      models.Unbounded,
		MaxOutputs:     models.Unbounded,
	}
}
