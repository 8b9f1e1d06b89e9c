package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/mocks"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/services"
	"github.com/dukex/agentflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEditor_SaveCreatesThenUpdates(t *testing.T) {
	workflows := newWorkflowService(t)
	editor := services.NewEditor(workflows, discardLogger())

	editor.Edit(func(g *graph.Graph) {
		g.AddNode(testutil.Definition(models.CategoryTriggers, "webhook"), models.Position{})
	})
	assert.True(t, editor.Dirty())

	require.NoError(t, editor.Save(t.Context()))

	g := editor.Graph()
	assert.False(t, g.IsNew())
	assert.False(t, editor.Dirty())
	assert.Equal(t, 1, g.Serialize().CurrentVersion)

	name := "Renamed"
	editor.Edit(func(g *graph.Graph) {
		g.UpdateDetails(graph.Details{Name: &name})
	})

	require.NoError(t, editor.Save(t.Context()))
	assert.Equal(t, 2, editor.Graph().Serialize().CurrentVersion)

	stored, err := workflows.FetchByID(t.Context(), editor.Graph().ID())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Len(t, stored.Nodes, 1)
}

func TestEditor_FailedSaveKeepsState(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("disk full")).Once()

	editor := services.NewEditor(services.NewWorkflow(store, discardLogger()), discardLogger())

	editor.Edit(func(g *graph.Graph) {
		g.AddNode(testutil.Definition(models.CategoryOutput, "log"), models.Position{})
	})
	before := editor.Graph().Serialize()

	err := editor.Save(t.Context())
	require.Error(t, err)

	assert.True(t, editor.Dirty())
	assert.True(t, editor.Graph().IsNew())
	assert.Equal(t, before, editor.Graph().Serialize())
	assert.False(t, editor.Saving())

	store.AssertExpectations(t)
}

func TestEditor_SaveInProgress(t *testing.T) {
	release := make(chan struct{})

	store := &mocks.MockPersistence{}
	store.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(&models.Workflow{ID: "wf-1", CurrentVersion: 1}, nil).
		Once()

	editor := services.NewEditor(services.NewWorkflow(store, discardLogger()), discardLogger())

	done := make(chan error, 1)

	go func() {
		done <- editor.Save(t.Context())
	}()

	require.Eventually(t, editor.Saving, time.Second, time.Millisecond)

	assert.ErrorIs(t, editor.Save(t.Context()), services.ErrSaveInProgress)

	close(release)
	require.NoError(t, <-done)

	assert.False(t, editor.Saving())
	assert.Equal(t, "wf-1", editor.Graph().ID())
	store.AssertExpectations(t)
}

func TestEditor_EditDuringSave(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	store := &mocks.MockPersistence{}
	store.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&models.Workflow{ID: "wf-1", CurrentVersion: 1}, nil).
		Once()

	editor := services.NewEditor(services.NewWorkflow(store, discardLogger()), discardLogger())

	done := make(chan error, 1)

	go func() {
		done <- editor.Save(t.Context())
	}()

	<-entered

	edited := make(chan struct{})

	go func() {
		editor.Edit(func(g *graph.Graph) {
			g.AddNode(testutil.Definition(models.CategoryOutput, "log"), models.Position{})
		})
		close(edited)
	}()

	select {
	case <-edited:
	case <-time.After(time.Second):
		t.Fatal("Edit blocked behind an in-flight save")
	}

	assert.True(t, editor.Saving())

	close(release)
	require.NoError(t, <-done)

	g := editor.Graph()
	assert.Equal(t, "wf-1", g.ID())
	assert.False(t, g.IsNew())
	assert.True(t, editor.Dirty(), "the edit made during the save is not persisted yet")
	assert.Len(t, g.Nodes(), 1)

	store.AssertExpectations(t)
}

func TestEditor_SaveWithoutConcurrentEditIsClean(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("Create", mock.Anything, mock.Anything).
		Return(&models.Workflow{ID: "wf-1", CurrentVersion: 1}, nil).
		Once()

	editor := services.NewEditor(services.NewWorkflow(store, discardLogger()), discardLogger())

	editor.Edit(func(g *graph.Graph) {
		g.AddNode(testutil.Definition(models.CategoryOutput, "log"), models.Position{})
	})

	require.NoError(t, editor.Save(t.Context()))
	assert.False(t, editor.Dirty())
	store.AssertExpectations(t)
}

func TestEditor_Load(t *testing.T) {
	workflows := newWorkflowService(t)

	created, err := workflows.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
	require.NoError(t, err)

	editor := services.NewEditor(workflows, discardLogger())

	require.NoError(t, editor.Load(t.Context(), created.ID))
	assert.Equal(t, created.ID, editor.Graph().ID())
	assert.Len(t, editor.Graph().Nodes(), 2)
	assert.False(t, editor.Dirty())

	require.NoError(t, editor.Load(t.Context(), "0197a1b2-0000-7000-8000-000000000000"))
	assert.True(t, editor.Graph().IsNew(), "an unknown id starts a fresh workflow")
	assert.Empty(t, editor.Graph().Nodes())
}

func TestEditor_LoadError(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("Get", mock.Anything, "wf-1").Return(nil, errors.New("connection refused"))

	editor := services.NewEditor(services.NewWorkflow(store, discardLogger()), discardLogger())

	assert.Error(t, editor.Load(t.Context(), "wf-1"))
}

func TestEditor_Leave(t *testing.T) {
	editor := services.NewEditor(newWorkflowService(t), discardLogger())

	asked := false
	confirm := func() bool {
		asked = true

		return false
	}

	assert.True(t, editor.Leave(confirm))
	assert.False(t, asked, "a clean session leaves without asking")

	editor.Edit(func(g *graph.Graph) {
		g.AddNode(testutil.Definition(models.CategoryOutput, "log"), models.Position{})
	})

	assert.False(t, editor.Leave(confirm))
	assert.True(t, asked)
}
