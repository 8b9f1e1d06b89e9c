package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// AITypePrefix prefixes the catalog model id to form an AI component type.
const AITypePrefix = "ai-"

const catalogFlight = "catalog"

// CatalogSource lists the active models of the external catalog.
// *gateway.CatalogClient satisfies it.
type CatalogSource interface {
	ListActiveModels(ctx context.Context, filter models.CatalogFilter) ([]models.CatalogModel, error)
}

// CatalogStatus describes the state of the AI category cache.
type CatalogStatus struct {
	Models      int       `json:"models"`
	LoadedAt    time.Time `json:"loaded_at,omitzero"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Stale       bool      `json:"stale"`
}

// LoadCatalog refreshes the AI category from the catalog. A successful load is
// reused until the TTL expires or Invalidate is called. Concurrent callers
// share one in-flight fetch. On failure the previous AI category is kept and
// the error is returned.
func (r *Registry) LoadCatalog(ctx context.Context) error {
	if r.catalog == nil || r.fresh() {
		return nil
	}

	// The shared fetch must not be cancelled by whichever caller started it;
	// each caller still stops waiting when its own context is done.
	flightCtx := context.WithoutCancel(ctx)

	ch := r.group.DoChan(catalogFlight, func() (any, error) {
		if r.fresh() {
			return nil, nil
		}

		return nil, r.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// Invalidate marks the cached AI category stale; the next LoadCatalog fetches.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stale = true
}

func (r *Registry) CatalogStatus() CatalogStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := CatalogStatus{
		Models:      len(r.ai.list),
		LoadedAt:    r.loadedAt,
		LastAttempt: r.lastAttempt,
		Stale:       r.stale || r.loadedAt.IsZero() || r.now().Sub(r.loadedAt) >= r.ttl,
	}

	if r.lastErr != nil {
		status.LastError = r.lastErr.Error()
	}

	return status
}

func (r *Registry) fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return !r.stale && !r.loadedAt.IsZero() && r.now().Sub(r.loadedAt) < r.ttl
}

func (r *Registry) refresh(ctx context.Context) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "registry.load_catalog")
	defer span.End()

	entries, err := r.catalog.ListActiveModels(ctx, models.CatalogFilter{})
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.lastAttempt = r.now()
		r.mu.Unlock()

		otelhelper.SetError(span, err)
		r.metrics.CatalogRefreshed(0, err)
		r.logger.ErrorContext(ctx, "Failed to load model catalog, keeping previous AI components", "error", err)

		return fmt.Errorf("load catalog: %w", err)
	}

	set := &aiSet{
		list:  make([]*models.ComponentDefinition, 0, len(entries)),
		index: make(map[string]*models.ComponentDefinition, len(entries)),
	}

	for _, entry := range entries {
		if !entry.IsActive || entry.ID == "" {
			continue
		}

		def := NewAIComponent(r.aiTemplate, entry)
		if _, exists := set.index[def.Type]; exists {
			r.logger.WarnContext(ctx, "Duplicate catalog model ignored", "model_id", entry.ID)

			continue
		}

		set.list = append(set.list, def)
		set.index[def.Type] = def
	}

	now := r.now()

	r.mu.Lock()
	r.ai = set
	r.loadedAt = now
	r.lastAttempt = now
	r.lastErr = nil
	r.stale = false
	r.mu.Unlock()

	span.SetAttributes(attribute.Int(otelhelper.CatalogSizeKey, len(set.list)))
	r.metrics.CatalogRefreshed(len(set.list), nil)
	r.logger.InfoContext(ctx, "Model catalog loaded", "models", len(set.list))

	return nil
}

// NewAIComponent derives the component definition of one catalog model from
// template. Model parameters override the template defaults.
func NewAIComponent(template *models.ComponentDefinition, model models.CatalogModel) *models.ComponentDefinition {
	def := *template

	label := model.Name
	if label == "" {
		label = model.ModelID
	}

	def.Type = AITypePrefix + model.ID
	def.Category = models.CategoryAI
	def.Label = label
	def.Description = fmt.Sprintf("%s model served by %s", model.ModelID, model.Provider)
	def.IsAsync = true
	def.RequiresAuth = true
	def.IsBeta = slices.Contains(model.Tags, "beta")
	def.ModelInfo = &models.ModelInfo{
		Provider:     model.Provider,
		ModelID:      model.ModelID,
		Capabilities: slices.Clone(model.Capabilities),
		IsActive:     model.IsActive,
	}

	data := template.NewDefaultData()
	maps.Copy(data, models.DeepCopyMap(model.Parameters))
	data["model"] = model.ModelID
	data["provider"] = model.Provider
	data["label"] = label
	def.DefaultData = data

	return &def
}

// DefaultAITemplate is the definition every AI component starts from.
func DefaultAITemplate() *models.ComponentDefinition {
	return &models.ComponentDefinition{
		Category:       models.CategoryAI,
		Color:          "#8b5cf6",
		Icon:           "sparkles",
		AllowedInputs:  models.AnyConnection(),
		AllowedOutputs: models.AnyConnection(),
		MaxInputs:      models.Unbounded,
		MaxOutputs:     models.Unbounded,
		DefaultData: map[string]any{
			"systemPrompt":     "",
			"prompt":           "{{input}}",
			"temperature":      0.7,
			"maxTokens":        1000.0,
			"topP":             1.0,
			"frequencyPenalty": 0.0,
			"presencePenalty":  0.0,
			"stopSequences":    []any{},
			"stream":           false,
			"responseFormat":   "text",
		},
		Schema: &models.JSONSchema{
			Type:     "object",
			Required: []string{"model", "prompt"},
			Properties: map[string]*models.Property{
				"model":            {Type: "string", Description: "Model identifier sent to the inference endpoint"},
				"provider":         {Type: "string"},
				"systemPrompt":     {Type: "string", Description: "System message, supports {{input}} tokens"},
				"prompt":           {Type: "string", Description: "User message template, supports {{input}} tokens"},
				"temperature":      {Type: "number", Minimum: ptr(0), Maximum: ptr(2)},
				"maxTokens":        {Type: "number", Minimum: ptr(1)},
				"topP":             {Type: "number", Minimum: ptr(0), Maximum: ptr(1)},
				"frequencyPenalty": {Type: "number", Minimum: ptr(-2), Maximum: ptr(2)},
				"presencePenalty":  {Type: "number", Minimum: ptr(-2), Maximum: ptr(2)},
				"stopSequences":    {Type: "array", Items: &models.Property{Type: "string"}},
				"stream":           {Type: "boolean"},
				"responseFormat":   {Type: "string", Enum: []any{"text", "json"}},
			},
		},
	}
}

func ptr(v float64) *float64 {
	return &v
}
