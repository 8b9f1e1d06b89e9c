package persistence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
	"github.com/dukex/agentflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowError(t *testing.T) {
	t.Parallel()

	t.Run("unwraps to the sentinel", func(t *testing.T) {
		err := persistence.NewWorkflowError("Get", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.True(t, persistence.IsWorkflowNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrWorkflowNotFound))
		assert.False(t, persistence.IsWorkflowAlreadyExists(err))
	})

	t.Run("message carries context", func(t *testing.T) {
		err := persistence.NotFound("Update", "workflow-123")

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("no id", func(t *testing.T) {
		err := persistence.NewWorkflowError("List", "", errors.New("boom"))

		assert.Equal(t, "List workflow: boom", err.Error())
	})
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	workflow := testutil.CreateTestWorkflowWithNodes()
	workflow.Status = ""
	workflow.Tags = nil

	record, err := persistence.NewRecord(workflow, now)
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Empty(t, workflow.ID)
	assert.Equal(t, 1, record.CurrentVersion)
	assert.Equal(t, models.WorkflowStatusDraft, record.Status)
	assert.Equal(t, []string{}, record.Tags)
	assert.Equal(t, now, record.CreatedAt)
	assert.Equal(t, now, record.UpdatedAt)

	record.Nodes[0].Data["mutated"] = true
	assert.NotContains(t, workflow.Nodes[0].Data, "mutated")
}

func TestNewRecord_InvalidStatus(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow()
	workflow.Status = "published"

	_, err := persistence.NewRecord(workflow, time.Now())
	assert.ErrorIs(t, err, persistence.ErrInvalidWorkflowStatus)
}

func TestApplyUpdate(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stored, err := persistence.NewRecord(testutil.CreateTestWorkflowWithNodes(), created)
	require.NoError(t, err)

	stored.CurrentVersion = 4
	later := created.Add(time.Hour)
	nodes := []*models.WorkflowNode{testutil.CreateTestNode(testutil.WithID("only"))}

	updated, err := persistence.ApplyUpdate(stored, models.WorkflowPatch{Nodes: nodes}, later)
	require.NoError(t, err)

	assert.Equal(t, 5, updated.CurrentVersion)
	assert.Equal(t, created, updated.CreatedAt)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Len(t, updated.Nodes, 1)
	assert.Len(t, updated.Connections, 1, "connections were not part of the patch")
	assert.Len(t, stored.Nodes, 2, "stored copy is untouched")

	nodes[0].Label = "changed by caller"
	assert.NotEqual(t, "changed by caller", updated.Nodes[0].Label)
}
