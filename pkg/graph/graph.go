// Package graph holds the in-memory workflow being edited and applies mutations
// that preserve its invariants.
package graph

import (
	"maps"
	"slices"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/google/uuid"
)

// Definitions resolves component definitions. *registry.Registry satisfies it.
type Definitions interface {
	Get(category models.Category, componentType string) (*models.ComponentDefinition, bool)
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(generate func() string) Option {
	return func(g *Graph) {
		g.newID = generate
	}
}

// WithPolicy enables the per-component connection rules (allowed inputs and
// outputs, maximum connection counts) on top of the structural invariants.
func WithPolicy(definitions Definitions) Option {
	return func(g *Graph) {
		g.definitions = definitions
	}
}

// NodePatch is a partial node update. Data is merged shallowly.
type NodePatch struct {
	Data     map[string]any
	Position *models.Position
	Label    *string
}

// Details is a partial update of the workflow metadata.
type Details struct {
	Name        *string
	Description *string
	Tags        []string
	Status      *models.WorkflowStatus
}

// Graph is the authoritative editing state of one workflow. It is not safe for
// concurrent use; one editing session owns it.
type Graph struct {
	workflow    *models.Workflow
	dirty       bool
	revision    uint64
	newID       func() string
	definitions Definitions
	used        map[string]struct{}
}

// New wraps a copy of workflow. A nil workflow starts an empty draft.
func New(workflow *models.Workflow, opts ...Option) *Graph {
	if workflow == nil {
		workflow = &models.Workflow{Status: models.WorkflowStatusDraft}
	}

	g := &Graph{
		workflow: workflow.Clone(),
		newID:    uuid.NewString,
		used:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.workflow.Status == "" {
		g.workflow.Status = models.WorkflowStatusDraft
	}

	if g.workflow.Nodes == nil {
		g.workflow.Nodes = []*models.WorkflowNode{}
	}

	if g.workflow.Connections == nil {
		g.workflow.Connections = []*models.Connection{}
	}

	for _, node := range g.workflow.Nodes {
		g.used[node.ID] = struct{}{}
	}

	for _, conn := range g.workflow.Connections {
		g.used[conn.ID] = struct{}{}
	}

	return g
}

// NewWorkflow starts an unsaved draft.
func NewWorkflow(name string, opts ...Option) *Graph {
	return New(&models.Workflow{Name: name, Status: models.WorkflowStatusDraft}, opts...)
}

// ID returns the persisted id, empty for an unsaved workflow.
func (g *Graph) ID() string {
	return g.workflow.ID
}

// IsNew reports whether the workflow was never saved.
func (g *Graph) IsNew() bool {
	return g.workflow.ID == ""
}

// Dirty reports unsaved local mutations.
func (g *Graph) Dirty() bool {
	return g.dirty
}

// MarkClean clears the dirty flag after a successful persistence operation.
func (g *Graph) MarkClean() {
	g.dirty = false
}

// Saved records the identity assigned by the persistence layer and marks the
// graph clean.
func (g *Graph) Saved(id string, version int) {
	g.Assign(id, version)
	g.dirty = false
}

// Assign records the identity assigned by the persistence layer but keeps the
// dirty flag, for a save whose snapshot predates later mutations.
func (g *Graph) Assign(id string, version int) {
	g.workflow.ID = id
	g.workflow.CurrentVersion = version
}

// Revision counts mutations since the graph was built.
func (g *Graph) Revision() uint64 {
	return g.revision
}

func (g *Graph) touch() {
	g.dirty = true
	g.revision++
}

// Nodes returns the nodes. Callers must treat them as read-only.
func (g *Graph) Nodes() []*models.WorkflowNode {
	return g.workflow.Nodes
}

// Connections returns the connections. Callers must treat them as read-only.
func (g *Graph) Connections() []*models.Connection {
	return g.workflow.Connections
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*models.WorkflowNode, bool) {
	node := g.workflow.NodeByID(id)

	return node, node != nil
}

// UpdateDetails changes name, description, tags or status.
func (g *Graph) UpdateDetails(details Details) {
	if details.Name != nil {
		g.workflow.Name = *details.Name
	}

	if details.Description != nil {
		g.workflow.Description = *details.Description
	}

	if details.Tags != nil {
		g.workflow.Tags = normalizeTags(details.Tags)
	}

	if details.Status != nil {
		g.workflow.Status = *details.Status
	}

	g.touch()
}

// AddNode places a new instance of def at position.
func (g *Graph) AddNode(def *models.ComponentDefinition, position models.Position) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:       g.allocateID(),
		Type:     def.Type,
		Category: def.Category,
		Position: position,
		Data:     def.NewDefaultData(),
		Label:    def.Label,
	}

	g.workflow.Nodes = append(g.workflow.Nodes, node)
	g.touch()

	return node
}

// UpdateNode merges patch into the node. Unknown ids are ignored.
func (g *Graph) UpdateNode(id string, patch NodePatch) {
	node := g.workflow.NodeByID(id)
	if node == nil {
		return
	}

	if patch.Data != nil {
		if node.Data == nil {
			node.Data = make(map[string]any, len(patch.Data))
		}

		maps.Copy(node.Data, patch.Data)
	}

	if patch.Position != nil {
		node.Position = *patch.Position
	}

	if patch.Label != nil {
		node.Label = *patch.Label
	}

	g.touch()
}

// RemoveNode deletes the node and every connection touching it.
func (g *Graph) RemoveNode(id string) {
	before := len(g.workflow.Nodes)

	g.workflow.Nodes = slices.DeleteFunc(g.workflow.Nodes, func(n *models.WorkflowNode) bool {
		return n.ID == id
	})

	if len(g.workflow.Nodes) == before {
		return
	}

	g.workflow.Connections = slices.DeleteFunc(g.workflow.Connections, func(c *models.Connection) bool {
		return c.Source == id || c.Target == id
	})

	g.touch()
}

// AddConnection links the output of source to the input of target. A
// rejected attempt returns a *RejectedError and leaves the graph unchanged.
func (g *Graph) AddConnection(source, target string) (*models.Connection, error) {
	if err := g.checkConnection(source, target); err != nil {
		return nil, &RejectedError{Source: source, Target: target, Err: err}
	}

	conn := &models.Connection{
		ID:     g.allocateID(),
		Source: source,
		Target: target,
	}

	g.workflow.Connections = append(g.workflow.Connections, conn)
	g.touch()

	return conn, nil
}

// RemoveConnection deletes the connection if present.
func (g *Graph) RemoveConnection(id string) {
	before := len(g.workflow.Connections)

	g.workflow.Connections = slices.DeleteFunc(g.workflow.Connections, func(c *models.Connection) bool {
		return c.ID == id
	})

	if len(g.workflow.Connections) != before {
		g.touch()
	}
}

// Upstream returns the nodes with a connection into id.
func (g *Graph) Upstream(id string) []*models.WorkflowNode {
	return Upstream(g.workflow, id)
}

// Downstream returns the nodes fed by id.
func (g *Graph) Downstream(id string) []*models.WorkflowNode {
	return Downstream(g.workflow, id)
}

// Serialize returns a snapshot suitable for the persistence layer. The dirty
// flag is not part of it and the snapshot shares no memory with the graph.
func (g *Graph) Serialize() *models.Workflow {
	snapshot := g.workflow.Clone()
	snapshot.Tags = normalizeTags(snapshot.Tags)

	return snapshot
}

func (g *Graph) checkConnection(source, target string) error {
	if source == target {
		return ErrSelfLoop
	}

	sourceNode := g.workflow.NodeByID(source)
	targetNode := g.workflow.NodeByID(target)

	if sourceNode == nil || targetNode == nil {
		return ErrUnknownNode
	}

	if targetNode.IsTrigger() {
		return ErrTriggerTarget
	}

	outgoing, incoming := 0, 0

	for _, conn := range g.workflow.Connections {
		if conn.Source == source && conn.Target == target {
			return ErrDuplicateConnection
		}

		if conn.Source == source {
			outgoing++
		}

		if conn.Target == target {
			incoming++
		}
	}

	if g.definitions == nil {
		return nil
	}

	if def, ok := g.definitions.Get(sourceNode.Category, sourceNode.Type); ok {
		if !def.AllowedOutputs.Allows(targetNode.Category, targetNode.Type) {
			return ErrConnectionNotAllowed
		}

		if def.MaxOutputs != models.Unbounded && outgoing >= def.MaxOutputs {
			return ErrTooManyConnections
		}
	}

	if def, ok := g.definitions.Get(targetNode.Category, targetNode.Type); ok {
		if !def.AllowedInputs.Allows(sourceNode.Category, sourceNode.Type) {
			return ErrConnectionNotAllowed
		}

		if def.MaxInputs != models.Unbounded && incoming >= def.MaxInputs {
			return ErrTooManyConnections
		}
	}

	return nil
}

func (g *Graph) allocateID() string {
	for {
		id := g.newID()
		if _, taken := g.used[id]; taken {
			continue
		}

		g.used[id] = struct{}{}

		return id
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		if tag == "" || slices.Contains(out, tag) {
			continue
		}

		out = append(out, tag)
	}

	slices.Sort(out)

	return out
}
