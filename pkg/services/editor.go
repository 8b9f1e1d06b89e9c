package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
)

const untitledWorkflow = "Untitled workflow"

// Editor is one editing session: a graph.Graph bound to the workflow service.
// Mutations go through Edit so they serialize with Save's snapshot.
type Editor struct {
	workflows *Workflow
	options   []graph.Option
	logger    *slog.Logger

	mu     sync.Mutex
	graph  *graph.Graph
	saving atomic.Bool
}

// NewEditor starts a session on a fresh unsaved workflow. opts configure
// every graph the session loads, e.g. graph.WithPolicy.
func NewEditor(workflows *Workflow, logger *slog.Logger, opts ...graph.Option) *Editor {
	return &Editor{
		workflows: workflows,
		options:   opts,
		logger:    logger.With("module", "editor"),
		graph:     graph.NewWorkflow(untitledWorkflow, opts...),
	}
}

// Load replaces the session graph with the stored workflow. An empty or
// unknown id starts a fresh workflow instead.
func (e *Editor) Load(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == "" {
		e.graph = graph.NewWorkflow(untitledWorkflow, e.options...)

		return nil
	}

	workflow, err := e.workflows.FetchByID(ctx, id)
	if persistence.IsWorkflowNotFound(err) {
		e.logger.InfoContext(ctx, "Workflow not found, starting a new one", "workflow_id", id)
		e.graph = graph.NewWorkflow(untitledWorkflow, e.options...)

		return nil
	}

	if err != nil {
		return err
	}

	e.graph = graph.New(workflow, e.options...)

	return nil
}

// Edit runs fn with exclusive access to the graph. It does not wait for an
// in-flight Save.
func (e *Editor) Edit(fn func(g *graph.Graph)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(e.graph)
}

// Graph returns the session graph for single goroutine callers such as the
// canvas engine.
func (e *Editor) Graph() *graph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.graph
}

// Dirty reports unsaved mutations.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.graph.Dirty()
}

// Saving reports whether a Save is in flight.
func (e *Editor) Saving() bool {
	return e.saving.Load()
}

// Save creates or updates the workflow. A Save while another is in flight
// returns ErrSaveInProgress. The graph is only locked while the snapshot is
// taken, so edits keep flowing during persistence; when one lands meanwhile
// the graph stays dirty. On failure the graph is left as it was so the caller
// can retry.
func (e *Editor) Save(ctx context.Context) error {
	if !e.saving.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}
	defer e.saving.Store(false)

	e.mu.Lock()
	g := e.graph
	revision := g.Revision()
	isNew := g.IsNew()
	snapshot := g.Serialize()
	e.mu.Unlock()

	var (
		saved *models.Workflow
		err   error
	)

	if isNew {
		saved, err = e.workflows.Create(ctx, snapshot)
	} else {
		saved, err = e.workflows.Update(ctx, snapshot.ID, models.PatchFromWorkflow(snapshot))
	}

	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to save workflow", "workflow_id", snapshot.ID, "error", err)

		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.graph != g:
		// Another workflow was loaded while saving.
	case g.Revision() == revision:
		g.Saved(saved.ID, saved.CurrentVersion)
	default:
		g.Assign(saved.ID, saved.CurrentVersion)
		e.logger.DebugContext(ctx, "Graph changed while saving", "workflow_id", saved.ID)
	}

	return nil
}

// Leave reports whether the session may be closed. confirm is only asked
// when there are unsaved changes.
func (e *Editor) Leave(confirm func() bool) bool {
	if !e.Dirty() {
		return true
	}

	return confirm()
}
