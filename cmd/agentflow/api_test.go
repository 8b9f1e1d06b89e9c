package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/agentflow/pkg/channels/gochannel"
	"github.com/dukex/agentflow/pkg/eventbus"
	"github.com/dukex/agentflow/pkg/executor"
	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/persistence/file"
	"github.com/dukex/agentflow/pkg/registry"
	"github.com/dukex/agentflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type stubCatalog struct {
	mu    sync.Mutex
	calls int
}

func (s *stubCatalog) ListActiveModels(context.Context, models.CatalogFilter) ([]models.CatalogModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	return []models.CatalogModel{
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", ModelID: "gpt-4o", IsActive: true},
	}, nil
}

func (s *stubCatalog) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func newTestRegistry(t *testing.T, source registry.CatalogSource) *registry.Registry {
	t.Helper()

	r := registry.New(slog.New(slog.DiscardHandler), source)
	require.NoError(t, r.RegisterDefaultComponents())

	return r
}

func newTestBus(t *testing.T, logger *slog.Logger) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, logger)

	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	return bus
}

func setupTestApp(t *testing.T, bus eventbus.EventBus) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	api := NewAPI(
		logger,
		file.NewPersistence(t.TempDir()),
		newTestRegistry(t, nil),
		executor.NewDefaultRegistry(nil, logger),
		bus,
		metrics.New(),
	)

	return api.App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t, nil)

	status, body := get(t, app, "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Agentflow API", body)
}

func TestAPI_Probes(t *testing.T) {
	app := setupTestApp(t, nil)

	for _, path := range []string{"/livez", "/readyz"} {
		status, body := get(t, app, path)

		assert.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, "OK", body, path)
	}
}

func TestAPI_RecoversFromPanics(t *testing.T) {
	app := setupTestApp(t, nil)
	app.Get("/panic", func(fiber.Ctx) error {
		panic("handler bug")
	})

	status, _ := get(t, app, "/panic")
	assert.Equal(t, http.StatusInternalServerError, status)

	status, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Agentflow API", body)
}

func TestAPI_RejectsNullNodes(t *testing.T) {
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/workflows", strings.NewReader(`{"name":"x","nodes":[null]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	app := setupTestApp(t, nil)

	status, body := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "healthy")

	status, body = get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}

func TestAPI_GetWorkflows_Empty(t *testing.T) {
	app := setupTestApp(t, nil)

	status, body := get(t, app, "/workflows")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"workflows":[]`)
	assert.Contains(t, body, `"total_count":0`)
}

func TestAPI_EventLog(t *testing.T) {
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	bus := newTestBus(t, logger)
	require.NoError(t, subscribeEventLog(t.Context(), bus, logger))

	app := setupTestApp(t, bus)

	req := httptest.NewRequest(http.MethodPost, "/workflows", strings.NewReader(`{"name":"Logged"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Workflow saved")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "module=event_log")
}

func TestCatalogWarmer(t *testing.T) {
	source := &stubCatalog{}
	logger := slog.New(slog.DiscardHandler)
	catalog := services.NewCatalog(newTestRegistry(t, source), nil, logger)

	warmer := NewCatalogWarmer(catalog, logger)
	require.NoError(t, warmer.Start(t.Context(), "@every 1h"))

	t.Cleanup(warmer.Stop)

	assert.Eventually(t, func() bool {
		return catalog.Status().Models == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, source.Calls())
}

func TestCatalogWarmer_InvalidSchedule(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	warmer := NewCatalogWarmer(services.NewCatalog(newTestRegistry(t, &stubCatalog{}), nil, logger), logger)

	err := warmer.Start(t.Context(), "every now and then")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid catalog warm schedule")
}
