// Package persistencetest holds the behaviour every persistence backend must
// share, run against each implementation from its own tests.
package persistencetest

import (
	"testing"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence"
	"github.com/dukex/agentflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run executes the shared backend tests.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("create then get round trips", func(t *testing.T) {
		store := newStore(t)
		original := testutil.CreateTestWorkflowWithNodes()
		original.Nodes = append(original.Nodes, testutil.CreateTestNode(testutil.WithID("ai-1"), testutil.WithAINode("gpt-4o")))

		created, err := store.Create(t.Context(), original)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.Equal(t, 1, created.CurrentVersion)
		assert.Empty(t, original.ID, "input is not mutated")

		fetched, err := store.Get(t.Context(), created.ID)
		require.NoError(t, err)

		AssertSameContent(t, original, fetched)
		assert.Equal(t, created.ID, fetched.ID)
		assert.Equal(t, 1, fetched.CurrentVersion)
		assert.WithinDuration(t, created.CreatedAt, fetched.CreatedAt, time.Millisecond)
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(t.Context(), "0198a8a0-0000-7000-8000-000000000000")
		require.Error(t, err)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("update increments version", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
		require.NoError(t, err)

		name := "Renamed"
		status := models.WorkflowStatusActive

		updated, err := store.Update(t.Context(), created.ID, models.WorkflowPatch{Name: &name, Status: &status})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.CurrentVersion)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Len(t, updated.Nodes, 2, "fields absent from the patch are kept")

		updated, err = store.Update(t.Context(), created.ID, models.WorkflowPatch{Nodes: []*models.WorkflowNode{}, Connections: []*models.Connection{}})
		require.NoError(t, err)
		assert.Equal(t, 3, updated.CurrentVersion)

		fetched, err := store.Get(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, fetched.CurrentVersion)
		assert.Equal(t, models.WorkflowStatusActive, fetched.Status)
		assert.Empty(t, fetched.Nodes)
		assert.Empty(t, fetched.Connections)
	})

	t.Run("update unknown id", func(t *testing.T) {
		store := newStore(t)
		name := "x"

		_, err := store.Update(t.Context(), "0198a8a0-0000-7000-8000-000000000001", models.WorkflowPatch{Name: &name})
		require.Error(t, err)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("update rejects invalid status", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(t.Context(), testutil.CreateTestWorkflow())
		require.NoError(t, err)

		status := models.WorkflowStatus("published")
		_, err = store.Update(t.Context(), created.ID, models.WorkflowPatch{Status: &status})
		require.ErrorIs(t, err, persistence.ErrInvalidWorkflowStatus)

		fetched, err := store.Get(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, fetched.CurrentVersion)
	})

	t.Run("remove", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
		require.NoError(t, err)

		require.NoError(t, store.Remove(t.Context(), created.ID))

		_, err = store.Get(t.Context(), created.ID)
		assert.True(t, persistence.IsWorkflowNotFound(err))

		err = store.Remove(t.Context(), created.ID)
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("list", func(t *testing.T) {
		store := newStore(t)

		workflows, err := store.List(t.Context())
		require.NoError(t, err)
		assert.Empty(t, workflows)

		first := testutil.CreateTestWorkflow()
		first.Name = "first"
		second := testutil.CreateTestWorkflowWithNodes()
		second.Name = "second"

		_, err = store.Create(t.Context(), first)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		_, err = store.Create(t.Context(), second)
		require.NoError(t, err)

		workflows, err = store.List(t.Context())
		require.NoError(t, err)
		require.Len(t, workflows, 2)
		assert.Equal(t, "second", workflows[0].Name)
		assert.Equal(t, "first", workflows[1].Name)
		assert.Len(t, workflows[0].Nodes, 2)
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.HealthCheck(t.Context()))
	})
}

// AssertSameContent compares everything a caller controls: metadata, nodes
// and connections. Identity, version and timestamps are ignored.
func AssertSameContent(t *testing.T, want, got *models.Workflow) {
	t.Helper()

	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Description, got.Description)
	assert.ElementsMatch(t, want.Tags, got.Tags)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Owner, got.Owner)
	assert.ElementsMatch(t, want.Nodes, got.Nodes)
	assert.ElementsMatch(t, want.Connections, got.Connections)
}
