// Package models defines the core domain models for the workflow builder
package models

import (
	"fmt"
	"slices"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Being authored, not runnable by schedules
	WorkflowStatusActive   WorkflowStatus = "active"   // Runnable
	WorkflowStatusPaused   WorkflowStatus = "paused"   // Temporarily not runnable
	WorkflowStatusArchived WorkflowStatus = "archived" // Kept for history only
)

// WorkflowStatuses lists every valid status.
var WorkflowStatuses = []WorkflowStatus{
	WorkflowStatusDraft,
	WorkflowStatusActive,
	WorkflowStatusPaused,
	WorkflowStatusArchived,
}

// IsValid reports whether s is one of the known statuses.
func (s WorkflowStatus) IsValid() bool {
	return slices.Contains(WorkflowStatuses, s)
}

// Workflow is the aggregate root: a named graph of nodes and connections.
//
// CurrentVersion is owned by the persistence layer. It is 1 after the first
// successful create and grows by one on every update; clients never bump it.
type Workflow struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name"            validate:"required,min=1"`
	Description    string          `json:"description"`
	Tags           []string        `json:"tags"`
	Status         WorkflowStatus  `json:"status"          validate:"required"`
	CurrentVersion int             `json:"current_version"`
	Nodes          []*WorkflowNode `json:"nodes"           validate:"dive,required"`
	Connections    []*Connection   `json:"connections"     validate:"dive,required"`
	Owner          string          `json:"owner,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate checks the fields that are not covered by struct tags.
func (w *Workflow) Validate() error {
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid workflow status %q", w.Status)
	}

	return nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node != nil && node.ID == id {
			return node
		}
	}

	return nil
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w
	clone.Tags = slices.Clone(w.Tags)

	clone.Nodes = make([]*WorkflowNode, 0, len(w.Nodes))
	for _, node := range w.Nodes {
		clone.Nodes = append(clone.Nodes, node.Clone())
	}

	clone.Connections = make([]*Connection, 0, len(w.Connections))
	for _, conn := range w.Connections {
		clone.Connections = append(clone.Connections, conn.Clone())
	}

	return &clone
}

// WorkflowPatch is a partial update. Nil fields are left untouched; non-nil
// Nodes and Connections replace the stored sets wholesale.
type WorkflowPatch struct {
	Name        *string         `json:"name,omitempty"        validate:"omitempty,min=1"`
	Description *string         `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Status      *WorkflowStatus `json:"status,omitempty"`
	Nodes       []*WorkflowNode `json:"nodes,omitempty"       validate:"omitempty,dive,required"`
	Connections []*Connection   `json:"connections,omitempty" validate:"omitempty,dive,required"`
}

// Apply merges the patch into w.
func (p WorkflowPatch) Apply(w *Workflow) {
	if p.Name != nil {
		w.Name = *p.Name
	}

	if p.Description != nil {
		w.Description = *p.Description
	}

	if p.Tags != nil {
		w.Tags = slices.Clone(p.Tags)
	}

	if p.Status != nil {
		w.Status = *p.Status
	}

	if p.Nodes != nil {
		w.Nodes = p.Nodes
	}

	if p.Connections != nil {
		w.Connections = p.Connections
	}
}

// PatchFromWorkflow builds a patch that replaces every mutable field of the
// stored workflow with the values of w.
func PatchFromWorkflow(w *Workflow) WorkflowPatch {
	status := w.Status
	name := w.Name
	description := w.Description

	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}

	nodes := w.Nodes
	if nodes == nil {
		nodes = []*WorkflowNode{}
	}

	connections := w.Connections
	if connections == nil {
		connections = []*Connection{}
	}

	return WorkflowPatch{
		Name:        &name,
		Description: &description,
		Tags:        tags,
		Status:      &status,
		Nodes:       nodes,
		Connections: connections,
	}
}
