package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRule_JSON(t *testing.T) {
	tests := []struct {
		name     string
		rule     ConnectionRule
		expected string
	}{
		{name: "wildcard", rule: AnyConnection(), expected: `"any"`},
		{name: "zero value is wildcard", rule: ConnectionRule{}, expected: `"any"`},
		{name: "list", rule: OnlyConnections("ai", "transform"), expected: `["ai","transform"]`},
		{name: "none", rule: NoConnections(), expected: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.rule)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))

			var decoded ConnectionRule

			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tt.rule.Allows(CategoryAI, "ai-gpt"), decoded.Allows(CategoryAI, "ai-gpt"))
		})
	}
}

func TestConnectionRule_Allows(t *testing.T) {
	rule := OnlyConnections("ai", "webhook")

	assert.True(t, rule.Allows(CategoryAI, "ai-1"))
	assert.True(t, rule.Allows(CategoryTriggers, "webhook"))
	assert.False(t, rule.Allows(CategoryOutput, "log"))
	assert.False(t, NoConnections().Allows(CategoryAI, "ai-1"))
	assert.True(t, AnyConnection().Allows(CategoryOutput, "log"))
}

func TestComponentDefinition_NewDefaultDataIsACopy(t *testing.T) {
	def := &ComponentDefinition{
		Type:     "template",
		Category: CategoryTransform,
		DefaultData: map[string]any{
			"template": "{{input}}",
			"nested":   map[string]any{"a": 1},
		},
	}

	data := def.NewDefaultData()
	data["template"] = "changed"
	data["nested"].(map[string]any)["a"] = 2

	assert.Equal(t, "{{input}}", def.DefaultData["template"])
	assert.Equal(t, 1, def.DefaultData["nested"].(map[string]any)["a"])

	empty := (&ComponentDefinition{}).NewDefaultData()
	assert.NotNil(t, empty)
}

func TestComponentDefinition_HasInputPort(t *testing.T) {
	assert.False(t, (&ComponentDefinition{Category: CategoryTriggers, MaxInputs: Unbounded}).HasInputPort())
	assert.True(t, (&ComponentDefinition{Category: CategoryAI, MaxInputs: Unbounded}).HasInputPort())
	assert.False(t, (&ComponentDefinition{Category: CategoryOutput, MaxInputs: 0}).HasInputPort())
}

func TestWorkflow_CloneIsDeep(t *testing.T) {
	original := &Workflow{
		Name:   "Clone me",
		Status: WorkflowStatusDraft,
		Tags:   []string{"a"},
		Nodes: []*WorkflowNode{
			{ID: "n1", Type: "log", Category: CategoryOutput, Data: map[string]any{"level": "info"}},
		},
		Connections: []*Connection{{ID: "c1", Source: "n1", Target: "n2"}},
	}

	clone := original.Clone()
	clone.Tags[0] = "b"
	clone.Nodes[0].Data["level"] = "debug"
	clone.Connections[0].Target = "n3"

	assert.Equal(t, "a", original.Tags[0])
	assert.Equal(t, "info", original.Nodes[0].Data["level"])
	assert.Equal(t, "n2", original.Connections[0].Target)
	assert.Nil(t, (*Workflow)(nil).Clone())
}

func TestWorkflow_Validate(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := &Workflow{Name: "ok", Status: WorkflowStatusActive}
	require.NoError(t, validate.Struct(valid))
	require.NoError(t, valid.Validate())

	missingName := &Workflow{Status: WorkflowStatusDraft}
	require.Error(t, validate.Struct(missingName))

	badStatus := &Workflow{Name: "x", Status: "published"}
	require.Error(t, badStatus.Validate())

	badNode := &Workflow{
		Name:   "x",
		Status: WorkflowStatusDraft,
		Nodes:  []*WorkflowNode{{ID: "n1"}},
	}
	require.Error(t, validate.Struct(badNode))
}

func TestWorkflowPatch_Apply(t *testing.T) {
	workflow := &Workflow{
		Name:        "before",
		Description: "keep",
		Status:      WorkflowStatusDraft,
		Nodes:       []*WorkflowNode{{ID: "n1"}},
	}

	name := "after"
	status := WorkflowStatusPaused

	WorkflowPatch{Name: &name, Status: &status, Tags: []string{"x"}}.Apply(workflow)

	assert.Equal(t, "after", workflow.Name)
	assert.Equal(t, "keep", workflow.Description)
	assert.Equal(t, WorkflowStatusPaused, workflow.Status)
	assert.Equal(t, []string{"x"}, workflow.Tags)
	assert.Len(t, workflow.Nodes, 1)

	PatchFromWorkflow(&Workflow{Name: "empty", Status: WorkflowStatusDraft}).Apply(workflow)
	assert.Empty(t, workflow.Nodes)
	assert.NotNil(t, workflow.Connections)
}

func TestWorkflow_CloneKeepsNullEntries(t *testing.T) {
	original := &Workflow{
		Name:        "With holes",
		Nodes:       []*WorkflowNode{nil, {ID: "n1", Data: map[string]any{"k": "v"}}},
		Connections: []*Connection{nil},
	}

	clone := original.Clone()

	require.Len(t, clone.Nodes, 2)
	assert.Nil(t, clone.Nodes[0])
	assert.Equal(t, "n1", clone.Nodes[1].ID)
	require.Len(t, clone.Connections, 1)
	assert.Nil(t, clone.Connections[0])
	assert.Nil(t, original.NodeByID(""))
}
