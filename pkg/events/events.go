// Package events defines the notifications published when workflows are
// saved or deleted, nodes run and the model catalog refreshes.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every agentflow event.
const Topic = "agentflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowSavedEvent    EventType = "workflow.saved"
	WorkflowDeletedEvent  EventType = "workflow.deleted"
	NodeExecutedEvent     EventType = "node.executed"
	RunCompletedEvent     EventType = "run.completed"
	CatalogRefreshedEvent EventType = "catalog.refreshed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowSaved is published after a successful create or update.
type WorkflowSaved struct {
	BaseEvent

	Name    string `json:"name"`
	Version int    `json:"version"`
	Created bool   `json:"created"`
	Nodes   int    `json:"nodes"`
}

func (w WorkflowSaved) GetType() EventType {
	return WorkflowSavedEvent
}

type WorkflowDeleted struct {
	BaseEvent
}

func (w WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

// NodeExecuted reports one node execution. ErrorCode is empty on success.
type NodeExecuted struct {
	BaseEvent

	RunID      string `json:"run_id,omitempty"`
	NodeID     string `json:"node_id"`
	NodeType   string `json:"node_type"`
	Category   string `json:"category"`
	Success    bool   `json:"success"`
	ErrorCode  string `json:"error_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (n NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID      string `json:"run_id"`
	StartNode  string `json:"start_node"`
	Steps      int    `json:"steps"`
	Failed     bool   `json:"failed"`
	Halted     bool   `json:"halted"`
	DurationMs int64  `json:"duration_ms"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// CatalogRefreshed is published after each catalog fetch, successful or not.
type CatalogRefreshed struct {
	BaseEvent

	Models int    `json:"models"`
	Error  string `json:"error,omitempty"`
}

func (c CatalogRefreshed) GetType() EventType {
	return CatalogRefreshedEvent
}

// New returns an empty event of the given type to decode a payload into, or
// nil for an unknown type.
func New(eventType EventType) any {
	switch eventType {
	case WorkflowSavedEvent:
		return &WorkflowSaved{}
	case WorkflowDeletedEvent:
		return &WorkflowDeleted{}
	case NodeExecutedEvent:
		return &NodeExecuted{}
	case RunCompletedEvent:
		return &RunCompleted{}
	case CatalogRefreshedEvent:
		return &CatalogRefreshed{}
	default:
		return nil
	}
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
