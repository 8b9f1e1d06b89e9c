package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor runs one node with the output of its predecessor as input.
type Executor interface {
	Execute(ctx context.Context, node *models.WorkflowNode, input any) Result
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, node *models.WorkflowNode, input any) Result

func (f Func) Execute(ctx context.Context, node *models.WorkflowNode, input any) Result {
	return f(ctx, node, input)
}

type RegistryOption func(*Registry)

func WithTracer(tracer trace.Tracer) RegistryOption {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry dispatches executions by node category. Lookups happen at call
// time, so executors may be registered or replaced while running.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.Category]Executor
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		executors: make(map[models.Category]Executor),
		logger:    logger.With("module", "executor"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewDefaultRegistry wires the built-in executors: ai to the given AI
// executor, triggers to pass the raw input, transform to template rendering,
// data and output to pass-through.
func NewDefaultRegistry(ai Executor, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := NewRegistry(logger, opts...)

	r.Register(models.CategoryTriggers, Func(r.passThrough))
	r.Register(models.CategoryData, Func(r.passThrough))
	r.Register(models.CategoryTransform, &Transform{now: r.now})
	r.Register(models.CategoryOutput, &Output{logger: r.logger, now: r.now})

	if ai != nil {
		r.Register(models.CategoryAI, ai)
	}

	return r
}

func (r *Registry) Register(category models.Category, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[category] = executor
}

func (r *Registry) lookup(category models.Category) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[category]

	return executor, ok
}

// Execute runs node with input. Unknown categories produce a failure Result.
func (r *Registry) Execute(ctx context.Context, node *models.WorkflowNode, input any) Result {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "executor.execute",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.String(otelhelper.NodeCategoryKey, string(node.Category)),
	)
	defer span.End()

	started := r.now()

	var result Result

	executor, ok := r.lookup(node.Category)
	if ok {
		result = executor.Execute(ctx, node, input)
	} else {
		result = Failed(fmt.Sprintf("no executor for category %q", node.Category), ErrorDetails{
			Code:      CodeInvalidConfiguration,
			Timestamp: r.now().UTC(),
		})
	}

	if !result.Success {
		span.SetAttributes(attribute.String(otelhelper.ErrorCodeKey, result.Code()))
		otelhelper.SetError(span, fmt.Errorf("%s", result.Error))
	}

	r.metrics.NodeExecuted(string(node.Category), result.Success, r.now().Sub(started))
	r.logger.DebugContext(ctx, "Node executed", "node_id", node.ID, "type", node.Type, "success", result.Success)

	return result
}

func (r *Registry) passThrough(_ context.Context, _ *models.WorkflowNode, input any) Result {
	return Succeeded(input, Metadata{Timestamp: r.now().UTC()})
}
