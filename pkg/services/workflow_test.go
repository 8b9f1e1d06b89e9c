package services_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/agentflow/pkg/events"
	"github.com/dukex/agentflow/pkg/graph"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/mocks"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence/file"
	"github.com/dukex/agentflow/pkg/registry"
	"github.com/dukex/agentflow/pkg/services"
	"github.com/dukex/agentflow/pkg/testutil"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	r := registry.New(discardLogger(), nil)
	require.NoError(t, r.RegisterDefaultComponents())

	return r
}

func newWorkflowService(t *testing.T, opts ...services.WorkflowOption) *services.Workflow {
	t.Helper()

	return services.NewWorkflow(file.NewPersistence(t.TempDir()), discardLogger(), opts...)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service := newWorkflowService(t)

	message, ok := service.HealthCheck(t.Context())

	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestWorkflow_CreateAndFetch(t *testing.T) {
	service := newWorkflowService(t, services.WithNodeValidator(newRegistry(t)))

	input := testutil.CreateTestWorkflowWithNodes()
	input.Status = ""

	created, err := service.Create(t.Context(), input)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.CurrentVersion)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Empty(t, input.Status, "input is not mutated")

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Len(t, fetched.Nodes, 2)
	assert.Len(t, fetched.Connections, 1)
}

func TestWorkflow_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(w *models.Workflow) *models.Workflow
		errs   []error
	}{
		{
			name:   "nil workflow",
			modify: func(_ *models.Workflow) *models.Workflow { return nil },
			errs:   []error{services.ErrWorkflowNil},
		},
		{
			name: "empty name",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Name = ""

				return w
			},
			errs: []error{services.ErrInvalidRequest},
		},
		{
			name: "null node",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Nodes = append(w.Nodes, nil)

				return w
			},
			errs: []error{services.ErrInvalidRequest},
		},
		{
			name: "null connection",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Connections = append(w.Connections, nil)

				return w
			},
			errs: []error{services.ErrInvalidRequest},
		},
		{
			name: "unknown status",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Status = "published"

				return w
			},
			errs: []error{services.ErrInvalidStatus},
		},
		{
			name: "self loop",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Connections = append(w.Connections, testutil.CreateTestConnection("action-1", "action-1"))

				return w
			},
			errs: []error{services.ErrInvalidWorkflow, graph.ErrSelfLoop},
		},
		{
			name: "connection into a trigger",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Connections = append(w.Connections, testutil.CreateTestConnection("action-1", "trigger-1"))

				return w
			},
			errs: []error{services.ErrInvalidWorkflow, graph.ErrTriggerTarget},
		},
		{
			name: "unknown component",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Nodes = append(w.Nodes, testutil.CreateTestNode(testutil.WithType(models.CategoryOutput, "fax")))

				return w
			},
			errs: []error{services.ErrUnknownComponent, registry.ErrComponentNotFound},
		},
		{
			name: "node data violates schema",
			modify: func(w *models.Workflow) *models.Workflow {
				w.Nodes[0].Data["path"] = "no-leading-slash"

				return w
			},
			errs: []error{services.ErrInvalidNodeData, registry.ErrInvalidData},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newWorkflowService(t, services.WithNodeValidator(newRegistry(t)))

			created, err := service.Create(t.Context(), tt.modify(testutil.CreateTestWorkflowWithNodes()))

			require.Error(t, err)
			assert.Nil(t, created)
			assert.True(t, services.IsValidationError(err))

			for _, want := range tt.errs {
				assert.ErrorIs(t, err, want)
			}

			list, err := service.ListWorkflows(t.Context(), services.ListWorkflowsRequest{})
			require.NoError(t, err)
			assert.Zero(t, list.TotalCount, "nothing is stored")
		})
	}
}

func TestWorkflow_AIModelOutsideCatalogIsAccepted(t *testing.T) {
	service := newWorkflowService(t, services.WithNodeValidator(newRegistry(t)))

	workflow := testutil.CreateTestWorkflowWithNodes()
	workflow.Nodes = append(workflow.Nodes, testutil.CreateTestNode(testutil.WithAINode("gpt-4o"), testutil.WithID("ai-1")))

	created, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)
	assert.Len(t, created.Nodes, 3)
}

func TestWorkflow_Update(t *testing.T) {
	service := newWorkflowService(t)

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
	require.NoError(t, err)

	name := "Renamed"
	updated, err := service.Update(t.Context(), created.ID, models.WorkflowPatch{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 2, updated.CurrentVersion)
	assert.Len(t, updated.Nodes, 2)
}

func TestWorkflow_UpdateRejectsInvalidGraph(t *testing.T) {
	service := newWorkflowService(t)

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
	require.NoError(t, err)

	duplicate := []*models.WorkflowNode{
		testutil.CreateTestNode(testutil.WithID("same")),
		testutil.CreateTestNode(testutil.WithID("same")),
	}

	_, err = service.Update(t.Context(), created.ID, models.WorkflowPatch{Nodes: duplicate, Connections: []*models.Connection{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrInvalidWorkflow)
	assert.ErrorIs(t, err, graph.ErrDuplicateNodeID)

	stored, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentVersion)
}

func TestWorkflow_UpdateRejectsNullEntries(t *testing.T) {
	service := newWorkflowService(t)

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
	require.NoError(t, err)

	patches := map[string]models.WorkflowPatch{
		"nodes":       {Nodes: []*models.WorkflowNode{testutil.CreateTestNode(), nil}},
		"connections": {Connections: []*models.Connection{nil}},
	}

	for name, patch := range patches {
		t.Run(name, func(t *testing.T) {
			var updated *models.Workflow

			assert.NotPanics(t, func() {
				updated, err = service.Update(t.Context(), created.ID, patch)
			})
			require.Error(t, err)
			assert.Nil(t, updated)
			assert.ErrorIs(t, err, services.ErrInvalidRequest)
		})
	}
}

func TestWorkflow_UpdateUnknown(t *testing.T) {
	service := newWorkflowService(t)

	name := "x"
	_, err := service.Update(t.Context(), "0197a1b2-0000-7000-8000-000000000000", models.WorkflowPatch{Name: &name})

	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}

func TestWorkflow_Delete(t *testing.T) {
	service := newWorkflowService(t)

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflow())
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.True(t, services.IsNotFoundError(err))

	err = service.Delete(t.Context(), created.ID)
	assert.True(t, services.IsNotFoundError(err))
}

func TestWorkflow_ListWorkflows(t *testing.T) {
	service := newWorkflowService(t)

	seed := []struct {
		name  string
		owner string
		tags  []string
	}{
		{name: "alpha", owner: "ana", tags: []string{"billing"}},
		{name: "beta", owner: "ana", tags: []string{"support"}},
		{name: "gamma", owner: "bo", tags: []string{"billing", "support"}},
	}

	for _, s := range seed {
		workflow := testutil.CreateTestWorkflow()
		workflow.Name = s.name
		workflow.Owner = s.owner
		workflow.Tags = s.tags

		_, err := service.Create(t.Context(), workflow)
		require.NoError(t, err)
	}

	names := func(workflows []*models.Workflow) []string {
		out := make([]string, 0, len(workflows))
		for _, w := range workflows {
			out = append(out, w.Name)
		}

		return out
	}

	active := models.WorkflowStatusActive

	tests := []struct {
		name     string
		req      services.ListWorkflowsRequest
		expected []string
		total    int
		hasNext  bool
	}{
		{name: "all", req: services.ListWorkflowsRequest{}, expected: []string{"alpha", "beta", "gamma"}, total: 3},
		{name: "by owner", req: services.ListWorkflowsRequest{Owner: "ana"}, expected: []string{"alpha", "beta"}, total: 2},
		{name: "by tag", req: services.ListWorkflowsRequest{Tag: "billing"}, expected: []string{"alpha", "gamma"}, total: 2},
		{name: "by status", req: services.ListWorkflowsRequest{Status: &active}, expected: []string{}, total: 0},
		{name: "offset past the end", req: services.ListWorkflowsRequest{Offset: 5}, expected: []string{}, total: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.ListWorkflows(t.Context(), tt.req)
			require.NoError(t, err)

			assert.ElementsMatch(t, tt.expected, names(resp.Workflows))
			assert.Equal(t, tt.total, resp.TotalCount)
			assert.Equal(t, tt.hasNext, resp.HasNextPage)
		})
	}

	t.Run("pagination", func(t *testing.T) {
		first, err := service.ListWorkflows(t.Context(), services.ListWorkflowsRequest{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, first.Workflows, 2)
		assert.True(t, first.HasNextPage)

		second, err := service.ListWorkflows(t.Context(), services.ListWorkflowsRequest{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, second.Workflows, 1)
		assert.False(t, second.HasNextPage)

		assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, append(names(first.Workflows), names(second.Workflows)...))
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := service.ListWorkflows(t.Context(), services.ListWorkflowsRequest{Limit: 101})
		assert.ErrorIs(t, err, services.ErrInvalidRequest)

		unknown := models.WorkflowStatus("published")
		_, err = service.ListWorkflows(t.Context(), services.ListWorkflowsRequest{Status: &unknown})
		assert.ErrorIs(t, err, services.ErrInvalidStatus)
	})
}

func TestWorkflow_PublishesEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	service := newWorkflowService(t, services.WithPublisher(bus))

	bus.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(e *events.WorkflowSaved) bool {
		return e.Created && e.Version == 1 && e.Nodes == 2
	})).Return(nil).Once()

	created, err := service.Create(t.Context(), testutil.CreateTestWorkflowWithNodes())
	require.NoError(t, err)

	bus.On("Publish", mock.Anything, created.ID, mock.MatchedBy(func(e *events.WorkflowSaved) bool {
		return !e.Created && e.Version == 2 && e.WorkflowID == created.ID
	})).Return(errors.New("broker down")).Once()

	name := "Renamed"
	_, err = service.Update(t.Context(), created.ID, models.WorkflowPatch{Name: &name})
	require.NoError(t, err, "a failed publish does not fail the update")

	bus.On("Publish", mock.Anything, created.ID, mock.AnythingOfType("*events.WorkflowDeleted")).Return(nil).Once()

	require.NoError(t, service.Delete(t.Context(), created.ID))

	bus.AssertExpectations(t)
}

func TestWorkflow_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	service := newWorkflowService(t, services.WithMetrics(m))

	_, err := service.Create(t.Context(), testutil.CreateTestWorkflow())
	require.NoError(t, err)

	err = service.Delete(t.Context(), "0197a1b2-0000-7000-8000-000000000000")
	require.Error(t, err)

	count, err := promtestutil.GatherAndCount(m.Gatherer(), "agentflow_workflow_saves_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one create success and one delete failure series")
}
