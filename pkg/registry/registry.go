// Package registry resolves component definitions for the editor palette. The
// static categories are registered once at startup; the AI category mirrors
// the external model catalog and is refreshed through LoadCatalog.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/agentflow/pkg/metrics"
	"github.com/dukex/agentflow/pkg/models"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultCatalogTTL is how long a successful catalog load is reused.
const DefaultCatalogTTL = time.Minute

var (
	ErrDuplicateComponent = errors.New("component already registered")
	ErrReservedCategory   = errors.New("category is owned by the model catalog")
	ErrInvalidComponent   = errors.New("invalid component definition")
	ErrComponentNotFound  = errors.New("component not found")
)

type Option func(*Registry)

// WithCatalogTTL overrides DefaultCatalogTTL.
func WithCatalogTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock replaces time.Now, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithAITemplate replaces the definition AI components are derived from.
func WithAITemplate(template *models.ComponentDefinition) Option {
	return func(r *Registry) {
		r.aiTemplate = template
	}
}

type key struct {
	category models.Category
	typ      string
}

type Registry struct {
	logger     *slog.Logger
	catalog    CatalogSource
	ttl        time.Duration
	now        func() time.Time
	tracer     trace.Tracer
	metrics    *metrics.Metrics
	aiTemplate *models.ComponentDefinition

	mu     sync.RWMutex
	static map[models.Category][]*models.ComponentDefinition
	index  map[key]*models.ComponentDefinition
	ai     *aiSet

	group       singleflight.Group
	loadedAt    time.Time
	lastAttempt time.Time
	lastErr     error
	stale       bool
}

// aiSet is replaced as a whole; readers holding a pointer keep a consistent view.
type aiSet struct {
	list  []*models.ComponentDefinition
	index map[string]*models.ComponentDefinition
}

// New creates an empty registry. catalog may be nil, in which case the AI
// category stays empty and LoadCatalog is a no-op.
func New(logger *slog.Logger, catalog CatalogSource, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger.With("module", "registry"),
		catalog:    catalog,
		ttl:        DefaultCatalogTTL,
		now:        time.Now,
		aiTemplate: DefaultAITemplate(),
		static:     make(map[models.Category][]*models.ComponentDefinition),
		index:      make(map[key]*models.ComponentDefinition),
		ai:         &aiSet{index: map[string]*models.ComponentDefinition{}},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a static definition.
func (r *Registry) Register(def *models.ComponentDefinition) error {
	if def == nil || def.Type == "" || !def.Category.IsValid() {
		return fmt.Errorf("%w: type %q category %q", ErrInvalidComponent, typeOf(def), categoryOf(def))
	}

	if def.Category == models.CategoryAI {
		return fmt.Errorf("%w: %s", ErrReservedCategory, def.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{def.Category, def.Type}
	if _, exists := r.index[k]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateComponent, def.Category, def.Type)
	}

	r.index[k] = def
	r.static[def.Category] = append(r.static[def.Category], def)

	return nil
}

// Get resolves a (category, type) pair.
func (r *Registry) Get(category models.Category, componentType string) (*models.ComponentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if category == models.CategoryAI {
		def, ok := r.ai.index[componentType]

		return def, ok
	}

	def, ok := r.index[key{category, componentType}]

	return def, ok
}

// ListByCategory returns every category, in display order, with its
// definitions in insertion order. Categories without definitions map to an
// empty list.
func (r *Registry) ListByCategory() map[models.Category][]*models.ComponentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.Category][]*models.ComponentDefinition, len(models.AllCategories))

	for _, category := range models.AllCategories {
		var defs []*models.ComponentDefinition
		if category == models.CategoryAI {
			defs = r.ai.list
		} else {
			defs = r.static[category]
		}

		out[category] = append(make([]*models.ComponentDefinition, 0, len(defs)), defs...)
	}

	return out
}

// CanConnect reports whether an output of source may feed an input of target
// according to both definitions' connection rules.
func CanConnect(source, target *models.ComponentDefinition) bool {
	if !target.HasInputPort() {
		return false
	}

	return source.AllowedOutputs.Allows(target.Category, target.Type) &&
		target.AllowedInputs.Allows(source.Category, source.Type)
}

func typeOf(def *models.ComponentDefinition) string {
	if def == nil {
		return ""
	}

	return def.Type
}

func categoryOf(def *models.ComponentDefinition) models.Category {
	if def == nil {
		return ""
	}

	return def.Category
}
