package graph_test

import (
	"testing"

	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type definitionMap map[string]*models.ComponentDefinition

func (d definitionMap) Get(category models.Category, componentType string) (*models.ComponentDefinition, bool) {
	def, ok := d[string(category)+"/"+componentType]

	return def, ok
}

func newGraph(t *testing.T, opts ...graph.Option) (*graph.Graph, *models.WorkflowNode, *models.WorkflowNode, *models.WorkflowNode) {
	t.Helper()

	opts = append([]graph.Option{graph.WithIDGenerator(testutil.SequentialIDs("id"))}, opts...)
	g := graph.NewWorkflow("test", opts...)

	trigger := g.AddNode(testutil.Definition(models.CategoryTriggers, "webhook"), models.Position{X: 0, Y: 0})
	ai := g.AddNode(testutil.Definition(models.CategoryAI, "ai-gpt"), models.Position{X: 300, Y: 0})
	out := g.AddNode(testutil.Definition(models.CategoryOutput, "log"), models.Position{X: 600, Y: 0})

	g.MarkClean()

	return g, trigger, ai, out
}

func TestGraph_AddNode(t *testing.T) {
	g := graph.NewWorkflow("test")
	def := testutil.Definition(models.CategoryTransform, "template")

	node := g.AddNode(def, models.Position{X: 10, Y: 20})

	assert.NotEmpty(t, node.ID)
	assert.Equal(t, "template", node.Type)
	assert.Equal(t, models.CategoryTransform, node.Category)
	assert.Equal(t, "template", node.Label)
	assert.Equal(t, models.Position{X: 10, Y: 20}, node.Position)
	assert.Equal(t, def.DefaultData, node.Data)
	assert.True(t, g.Dirty())

	node.Data["label"] = "mutated"
	assert.Equal(t, "template", def.DefaultData["label"], "default data must be copied")
}

func TestGraph_IDsAreNeverReused(t *testing.T) {
	ids := []string{"a", "a", "b", "a", "b", "c"}
	next := 0
	g := graph.NewWorkflow("test", graph.WithIDGenerator(func() string {
		id := ids[next]
		next++

		return id
	}))

	def := testutil.Definition(models.CategoryOutput, "log")

	first := g.AddNode(def, models.Position{})
	g.RemoveNode(first.ID)
	second := g.AddNode(def, models.Position{})
	third := g.AddNode(def, models.Position{})

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
	assert.Equal(t, "c", third.ID)
}

func TestGraph_UpdateNode(t *testing.T) {
	g, _, ai, _ := newGraph(t)

	label := "Summarizer"
	position := models.Position{X: 1, Y: 2}

	g.UpdateNode(ai.ID, graph.NodePatch{
		Data:     map[string]any{"prompt": "Summarize {{input}}"},
		Position: &position,
		Label:    &label,
	})

	node, ok := g.Node(ai.ID)
	require.True(t, ok)
	assert.Equal(t, "Summarize {{input}}", node.Data["prompt"])
	assert.Equal(t, "ai-gpt", node.Data["label"], "data merge is shallow and keeps other keys")
	assert.Equal(t, position, node.Position)
	assert.Equal(t, "Summarizer", node.Label)
	assert.True(t, g.Dirty())
}

func TestGraph_UpdateUnknownNodeIsNoop(t *testing.T) {
	g, _, _, _ := newGraph(t)
	before := g.Serialize()

	g.UpdateNode("missing", graph.NodePatch{Data: map[string]any{"x": 1}})

	assert.Equal(t, before, g.Serialize())
	assert.False(t, g.Dirty())
}

func TestGraph_AddConnection(t *testing.T) {
	g, trigger, ai, _ := newGraph(t)

	conn, err := g.AddConnection(trigger.ID, ai.ID)
	require.NoError(t, err)
	assert.Equal(t, trigger.ID, conn.Source)
	assert.Equal(t, ai.ID, conn.Target)
	assert.Len(t, g.Connections(), 1)
	assert.True(t, g.Dirty())
}

func TestGraph_AddConnectionRejections(t *testing.T) {
	g, trigger, ai, out := newGraph(t)

	_, err := g.AddConnection(ai.ID, out.ID)
	require.NoError(t, err)
	g.MarkClean()

	tests := []struct {
		name   string
		source string
		target string
		err    error
	}{
		{name: "self loop", source: ai.ID, target: ai.ID, err: graph.ErrSelfLoop},
		{name: "duplicate", source: ai.ID, target: out.ID, err: graph.ErrDuplicateConnection},
		{name: "trigger target from ai", source: ai.ID, target: trigger.ID, err: graph.ErrTriggerTarget},
		{name: "trigger target from output", source: out.ID, target: trigger.ID, err: graph.ErrTriggerTarget},
		{name: "unknown source", source: "ghost", target: out.ID, err: graph.ErrUnknownNode},
		{name: "unknown target", source: ai.ID, target: "ghost", err: graph.ErrUnknownNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(g.Connections())

			conn, err := g.AddConnection(tt.source, tt.target)

			require.Error(t, err)
			assert.Nil(t, conn)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, graph.IsRejected(err))
			assert.Len(t, g.Connections(), before)
			assert.False(t, g.Dirty())
		})
	}
}

func TestGraph_NoDuplicateEdge(t *testing.T) {
	g, _, ai, out := newGraph(t)

	_, _ = g.AddConnection(ai.ID, out.ID)
	_, _ = g.AddConnection(ai.ID, out.ID)

	count := 0

	for _, conn := range g.Connections() {
		if conn.Source == ai.ID && conn.Target == out.ID {
			count++
		}
	}

	assert.Equal(t, 1, count)

	_, err := g.AddConnection(out.ID, ai.ID)
	assert.NoError(t, err, "the reverse direction is a different pair")
}

func TestGraph_RemoveNodeCascades(t *testing.T) {
	g, trigger, ai, out := newGraph(t)

	_, err := g.AddConnection(trigger.ID, ai.ID)
	require.NoError(t, err)
	_, err = g.AddConnection(ai.ID, out.ID)
	require.NoError(t, err)
	_, err = g.AddConnection(trigger.ID, out.ID)
	require.NoError(t, err)

	g.RemoveNode(ai.ID)

	_, found := g.Node(ai.ID)
	assert.False(t, found)
	require.Len(t, g.Connections(), 1)
	assert.Equal(t, trigger.ID, g.Connections()[0].Source)
	assert.Equal(t, out.ID, g.Connections()[0].Target)
}

func TestGraph_RemoveConnection(t *testing.T) {
	g, trigger, ai, _ := newGraph(t)

	conn, err := g.AddConnection(trigger.ID, ai.ID)
	require.NoError(t, err)
	g.MarkClean()

	g.RemoveConnection("missing")
	assert.False(t, g.Dirty())
	assert.Len(t, g.Connections(), 1)

	g.RemoveConnection(conn.ID)
	assert.True(t, g.Dirty())
	assert.Empty(t, g.Connections())
}

func TestGraph_Policy(t *testing.T) {
	defs := definitionMap{
		"triggers/webhook": testutil.Definition(models.CategoryTriggers, "webhook"),
		"ai/ai-gpt":        testutil.Definition(models.CategoryAI, "ai-gpt"),
		"output/log":       testutil.Definition(models.CategoryOutput, "log"),
	}
	defs["output/log"].AllowedInputs = models.OnlyConnections("ai")
	defs["ai/ai-gpt"].MaxOutputs = 1

	g, trigger, ai, out := newGraph(t, graph.WithPolicy(defs))

	_, err := g.AddConnection(trigger.ID, out.ID)
	assert.ErrorIs(t, err, graph.ErrConnectionNotAllowed)

	_, err = g.AddConnection(ai.ID, out.ID)
	require.NoError(t, err)

	second := g.AddNode(defs["output/log"], models.Position{})
	_, err = g.AddConnection(ai.ID, second.ID)
	assert.ErrorIs(t, err, graph.ErrTooManyConnections)
}

func TestGraph_SerializeSnapshot(t *testing.T) {
	g, trigger, ai, _ := newGraph(t)

	_, err := g.AddConnection(trigger.ID, ai.ID)
	require.NoError(t, err)

	g.UpdateDetails(graph.Details{Tags: []string{"b", "a", "b", ""}})

	snapshot := g.Serialize()

	assert.Equal(t, []string{"a", "b"}, snapshot.Tags)
	assert.Len(t, snapshot.Nodes, 3)
	assert.Len(t, snapshot.Connections, 1)
	assert.Empty(t, snapshot.ID)

	snapshot.Nodes[0].Data["mutated"] = true
	node, _ := g.Node(snapshot.Nodes[0].ID)
	assert.NotContains(t, node.Data, "mutated")
}

func TestGraph_Saved(t *testing.T) {
	g, _, _, _ := newGraph(t)

	assert.True(t, g.IsNew())

	name := "renamed"
	g.UpdateDetails(graph.Details{Name: &name})
	assert.True(t, g.Dirty())

	g.Saved("wf-1", 3)

	assert.Equal(t, "wf-1", g.ID())
	assert.False(t, g.IsNew())
	assert.False(t, g.Dirty())
	assert.Equal(t, 3, g.Serialize().CurrentVersion)
	assert.Equal(t, "renamed", g.Serialize().Name)
}

func TestGraph_RevisionAndAssign(t *testing.T) {
	g, _, _, _ := newGraph(t)

	start := g.Revision()

	name := "renamed"
	g.UpdateDetails(graph.Details{Name: &name})
	assert.Equal(t, start+1, g.Revision())

	g.Assign("wf-1", 1)
	assert.Equal(t, "wf-1", g.ID())
	assert.True(t, g.Dirty(), "Assign keeps pending mutations")

	g.Saved("wf-1", 1)
	assert.False(t, g.Dirty())
	assert.Equal(t, start+1, g.Revision())
}

func TestGraph_NewFromExistingWorkflow(t *testing.T) {
	workflow := testutil.CreateTestWorkflowWithNodes()

	g := graph.New(workflow)

	assert.False(t, g.Dirty())
	assert.Len(t, g.Nodes(), 2)
	assert.Equal(t, []*models.WorkflowNode{workflow.Nodes[0]}, g.Upstream("action-1"))
	assert.Equal(t, []*models.WorkflowNode{workflow.Nodes[1]}, g.Downstream("trigger-1"))

	g.RemoveNode("action-1")
	assert.Len(t, workflow.Nodes, 2, "graph works on its own copy")
}

func TestValidate_NullEntries(t *testing.T) {
	workflow := testutil.CreateTestWorkflowWithNodes()
	workflow.Nodes = append(workflow.Nodes, nil)
	workflow.Connections = append(workflow.Connections, nil)

	var err error

	assert.NotPanics(t, func() {
		err = graph.Validate(workflow)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrNilElement)
	assert.Len(t, graph.Upstream(workflow, "action-1"), 1)
	assert.Len(t, graph.Downstream(workflow, "trigger-1"), 1)
}
