// Package canvas turns pointer and keyboard events into graph edits and keeps
// the transient view state: zoom, pan, selection, node drags and the
// connection being drawn. Nothing here is persisted.
package canvas

import (
	"slices"
	"sync"

	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/models"
)

// Editor is the part of *graph.Graph the engine mutates.
type Editor interface {
	Nodes() []*models.WorkflowNode
	Connections() []*models.Connection
	Node(id string) (*models.WorkflowNode, bool)
	AddNode(def *models.ComponentDefinition, position models.Position) *models.WorkflowNode
	UpdateNode(id string, patch graph.NodePatch)
	RemoveNode(id string)
	AddConnection(source, target string) (*models.Connection, error)
	RemoveConnection(id string)
}

// Mode is the interaction the engine is in.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeDrawing  Mode = "drawing"
	ModeDragging Mode = "dragging"
	ModePanning  Mode = "panning"
)

// State is a snapshot of the view state handed to observers.
type State struct {
	Mode               Mode            `json:"mode"`
	Viewport           Viewport        `json:"viewport"`
	SelectedNode       string          `json:"selected_node,omitempty"`
	SelectedConnection string          `json:"selected_connection,omitempty"`
	Source             string          `json:"source,omitempty"`
	Pointer            Point           `json:"pointer"`
	DragNode           string          `json:"drag_node,omitempty"`
	DragDelta          models.Position `json:"drag_delta"`
	Rejection          error           `json:"-"`
}

// Option configures an Engine.
type Option func(*Engine)

func WithViewport(v Viewport) Option {
	return func(e *Engine) {
		v.Zoom = ClampZoom(v.Zoom)
		e.state.Viewport = v
	}
}

// WithScreenSize makes ZoomIn and ZoomOut anchor on the screen center instead
// of the origin.
func WithScreenSize(width, height float64) Option {
	return func(e *Engine) {
		e.center = Point{X: width / 2, Y: height / 2}
	}
}

// Engine is the interaction state machine of one canvas.
type Engine struct {
	mu     sync.Mutex
	editor Editor
	state  State
	center Point

	// pointer position on press and on the previous move, in screen space
	pressAt   Point
	lastAt    Point
	dragStart models.Position

	subscribers map[int]func(State)
	nextSub     int
}

// New returns an idle engine with the default viewport.
func New(editor Editor, opts ...Option) *Engine {
	e := &Engine{
		editor:      editor,
		state:       State{Mode: ModeIdle, Viewport: DefaultViewport()},
		subscribers: make(map[int]func(State)),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Subscribe registers fn for every state change and returns its cancel func.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		delete(e.subscribers, id)
	}
}

// State returns the current view state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// update applies fn under the lock and notifies subscribers afterwards.
func (e *Engine) update(fn func()) {
	e.mu.Lock()
	fn()
	snapshot := e.state

	ids := make([]int, 0, len(e.subscribers))
	for id := range e.subscribers {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	subscribers := make([]func(State), 0, len(ids))
	for _, id := range ids {
		subscribers = append(subscribers, e.subscribers[id])
	}
	e.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}

// Zoom and pan

func (e *Engine) ZoomIn() {
	e.update(func() {
		e.state.Viewport = e.state.Viewport.ZoomedAt(e.center, e.state.Viewport.Zoom+ZoomStep)
	})
}

func (e *Engine) ZoomOut() {
	e.update(func() {
		e.state.Viewport = e.state.Viewport.ZoomedAt(e.center, e.state.Viewport.Zoom-ZoomStep)
	})
}

// ZoomAt sets the zoom keeping the canvas point under anchor fixed.
func (e *Engine) ZoomAt(anchor Point, zoom float64) {
	e.update(func() {
		e.state.Viewport = e.state.Viewport.ZoomedAt(anchor, zoom)
	})
}

// Wheel zooms one step at the pointer: in for negative deltaY, out otherwise.
func (e *Engine) Wheel(anchor Point, deltaY float64) {
	if deltaY == 0 {
		return
	}

	step := ZoomStep
	if deltaY > 0 {
		step = -ZoomStep
	}

	e.update(func() {
		e.state.Viewport = e.state.Viewport.ZoomedAt(anchor, e.state.Viewport.Zoom+step)
	})
}

func (e *Engine) ResetView() {
	e.update(func() {
		e.state.Viewport = DefaultViewport()
	})
}

// PanBy moves the view by a screen-space offset. Pan is unbounded.
func (e *Engine) PanBy(dx, dy float64) {
	e.update(func() {
		e.state.Viewport.PanX += dx
		e.state.Viewport.PanY += dy
	})
}

// Hit testing

// HitTest reports what is under a screen point. Ports win over bodies and
// nodes later in the list are on top.
func (e *Engine) HitTest(screen Point) Hit {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.hitTest(screen)
}

func (e *Engine) hitTest(screen Point) Hit {
	p := e.state.Viewport.ToCanvas(screen)
	nodes := e.editor.Nodes()

	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]
		position := e.renderedPosition(node)

		if withinPort(p, OutputPort(position)) {
			return Hit{Kind: HitOutputPort, NodeID: node.ID}
		}

		if !node.IsTrigger() && withinPort(p, InputPort(position)) {
			return Hit{Kind: HitInputPort, NodeID: node.ID}
		}
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		if withinBody(p, e.renderedPosition(nodes[i])) {
			return Hit{Kind: HitNode, NodeID: nodes[i].ID}
		}
	}

	return Hit{Kind: HitNone}
}

// Pointer gestures

// PointerDown starts a gesture: drawing from an output port, dragging a node
// body or panning the background. A drawing gesture whose release was missed
// is cancelled first.
func (e *Engine) PointerDown(screen Point) {
	e.update(func() {
		hit := e.hitTest(screen)
		e.pressAt, e.lastAt = screen, screen
		e.state.Pointer = e.state.Viewport.ToCanvas(screen)
		e.state.Rejection = nil

		if e.state.Mode == ModeDrawing {
			e.cancelDrawing()
		}

		switch hit.Kind {
		case HitOutputPort:
			e.state.Mode = ModeDrawing
			e.state.Source = hit.NodeID
		case HitNode, HitInputPort:
			node, _ := e.editor.Node(hit.NodeID)
			e.state.SelectedNode = hit.NodeID
			e.state.SelectedConnection = ""
			e.state.Mode = ModeDragging
			e.state.DragNode = hit.NodeID
			e.state.DragDelta = models.Position{}
			e.dragStart = node.Position
		default:
			e.state.SelectedNode = ""
			e.state.SelectedConnection = ""
			e.state.Mode = ModePanning
		}
	})
}

// PointerMove updates the active gesture. Drags only move the rendered
// position; the graph is untouched until release.
func (e *Engine) PointerMove(screen Point) {
	e.update(func() {
		e.state.Pointer = e.state.Viewport.ToCanvas(screen)

		switch e.state.Mode {
		case ModeDragging:
			moved := screen.Sub(e.pressAt)
			zoom := e.state.Viewport.Zoom
			e.state.DragDelta = models.Position{X: moved.X / zoom, Y: moved.Y / zoom}
		case ModePanning:
			moved := screen.Sub(e.lastAt)
			e.state.Viewport.PanX += moved.X
			e.state.Viewport.PanY += moved.Y
		case ModeIdle, ModeDrawing:
		}

		e.lastAt = screen
	})
}

// PointerUp ends the gesture. A drag commits one UpdateNode with the final
// position. A drawing gesture connects when released on an input port and is
// cancelled anywhere else, its own source port included.
func (e *Engine) PointerUp(screen Point) {
	e.update(func() {
		e.state.Pointer = e.state.Viewport.ToCanvas(screen)

		switch e.state.Mode {
		case ModeDrawing:
			hit := e.hitTest(screen)

			if hit.Kind == HitInputPort {
				e.connect(hit.NodeID)
			} else {
				e.cancelDrawing()
			}
		case ModeDragging:
			e.commitDrag()
		case ModePanning:
			e.state.Mode = ModeIdle
		case ModeIdle:
		}
	})
}

func (e *Engine) connect(target string) {
	source := e.state.Source
	e.cancelDrawing()

	conn, err := e.editor.AddConnection(source, target)
	if err != nil {
		e.state.Rejection = err

		return
	}

	e.state.SelectedConnection = conn.ID
	e.state.SelectedNode = ""
}

func (e *Engine) cancelDrawing() {
	e.state.Mode = ModeIdle
	e.state.Source = ""
}

func (e *Engine) commitDrag() {
	id, delta := e.state.DragNode, e.state.DragDelta

	e.state.Mode = ModeIdle
	e.state.DragNode = ""
	e.state.DragDelta = models.Position{}

	if delta == (models.Position{}) {
		return
	}

	position := e.dragStart.Add(delta)
	e.editor.UpdateNode(id, graph.NodePatch{Position: &position})
}

func (e *Engine) cancelDrag() {
	e.state.Mode = ModeIdle
	e.state.DragNode = ""
	e.state.DragDelta = models.Position{}
}

// Rendering helpers

// RenderedPosition is the node position including an in-progress drag.
func (e *Engine) RenderedPosition(id string) (models.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.editor.Node(id)
	if !ok {
		return models.Position{}, false
	}

	return e.renderedPosition(node), true
}

func (e *Engine) renderedPosition(node *models.WorkflowNode) models.Position {
	if e.state.Mode == ModeDragging && node.ID == e.state.DragNode {
		return node.Position.Add(e.state.DragDelta)
	}

	return node.Position
}

// ConnectionPath is the canvas-space curve of a connection, following any
// node being dragged.
func (e *Engine) ConnectionPath(conn *models.Connection) (Bezier, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	source, ok := e.editor.Node(conn.Source)
	if !ok {
		return Bezier{}, false
	}

	target, ok := e.editor.Node(conn.Target)
	if !ok {
		return Bezier{}, false
	}

	return Curve(OutputPort(e.renderedPosition(source)), InputPort(e.renderedPosition(target))), true
}

// Preview is the curve from the drawing source to the pointer. It reports
// false when no connection is being drawn.
func (e *Engine) Preview() (Bezier, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Mode != ModeDrawing {
		return Bezier{}, false
	}

	source, ok := e.editor.Node(e.state.Source)
	if !ok {
		return Bezier{}, false
	}

	return Curve(OutputPort(e.renderedPosition(source)), e.state.Pointer), true
}

// Palette and keyboard

// Drop creates a node of def at the canvas point under the screen point.
func (e *Engine) Drop(def *models.ComponentDefinition, screen Point) *models.WorkflowNode {
	var node *models.WorkflowNode

	e.update(func() {
		p := e.state.Viewport.ToCanvas(screen)
		node = e.editor.AddNode(def, models.Position{X: p.X, Y: p.Y})
		e.state.SelectedNode = node.ID
		e.state.SelectedConnection = ""
	})

	return node
}

func (e *Engine) SelectNode(id string) {
	e.update(func() {
		e.state.SelectedNode = id
		e.state.SelectedConnection = ""
	})
}

func (e *Engine) SelectConnection(id string) {
	e.update(func() {
		e.state.SelectedConnection = id
		e.state.SelectedNode = ""
	})
}

func (e *Engine) ClearSelection() {
	e.update(func() {
		e.state.SelectedNode = ""
		e.state.SelectedConnection = ""
	})
}

// KeyDown handles editor shortcuts: Delete and Backspace remove the
// selection, Escape cancels the active gesture, + and - zoom.
func (e *Engine) KeyDown(key string) {
	switch key {
	case "+", "=":
		e.ZoomIn()

		return
	case "-":
		e.ZoomOut()

		return
	}

	e.update(func() {
		switch key {
		case "Delete", "Backspace":
			if e.state.Mode != ModeIdle {
				return
			}

			if e.state.SelectedNode != "" {
				e.editor.RemoveNode(e.state.SelectedNode)
			} else if e.state.SelectedConnection != "" {
				e.editor.RemoveConnection(e.state.SelectedConnection)
			}

			e.state.SelectedNode = ""
			e.state.SelectedConnection = ""
		case "Escape":
			switch e.state.Mode {
			case ModeDrawing:
				e.cancelDrawing()
			case ModeDragging:
				e.cancelDrag()
			case ModeIdle, ModePanning:
				e.state.Mode = ModeIdle
				e.state.SelectedNode = ""
				e.state.SelectedConnection = ""
			}
		}
	})
}
