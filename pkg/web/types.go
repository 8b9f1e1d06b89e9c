package web

import "github.com/dukex/agentflow/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=1"`
	Description string                 `json:"description"`
	Tags        []string               `json:"tags"`
	Owner       string                 `json:"owner"`
	Nodes       []*models.WorkflowNode `json:"nodes"       validate:"dive,required"`
	Connections []*models.Connection   `json:"connections" validate:"dive,required"`
}

func (r CreateWorkflowRequest) workflow() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags,
		Owner:       r.Owner,
		Nodes:       r.Nodes,
		Connections: r.Connections,
	}
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates; nodes and connections
// replace the stored sets when present.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=1"`
	Description *string                `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes,omitempty"       validate:"omitempty,dive,required"`
	Connections []*models.Connection   `json:"connections,omitempty" validate:"omitempty,dive,required"`
}

func (r UpdateWorkflowRequest) patch() models.WorkflowPatch {
	return models.WorkflowPatch{
		Name:        r.Name,
		Description: r.Description,
		Tags:        r.Tags,
		Nodes:       r.Nodes,
		Connections: r.Connections,
	}
}

// CreateConnectionRequest links the output of Source to the input of Target.
type CreateConnectionRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// ExecuteNodeRequest carries the input handed to a single node.
type ExecuteNodeRequest struct {
	Input any `json:"input"`
}

// ResolveTemplateRequest previews a template against a sample input.
type ResolveTemplateRequest struct {
	Template string `json:"template" validate:"required"`
	Input    any    `json:"input"`
}

type ResolveTemplateResponse struct {
	Result string   `json:"result"`
	Tokens []string `json:"tokens"`
}
