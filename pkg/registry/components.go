package registry

import (
	"github.com/dukex/agentflow/pkg/models"
)

// RegisterDefaultComponents installs the built-in palette.
func (r *Registry) RegisterDefaultComponents() error {
	for _, def := range DefaultComponents() {
		if err := r.Register(def); err != nil {
			return err
		}
	}

	return nil
}

// DefaultComponents returns fresh copies of the built-in definitions in
// palette order.
func DefaultComponents() []*models.ComponentDefinition {
	return []*models.ComponentDefinition{
		// Triggers
		trigger("webhook", "Webhook", "Start the workflow from an HTTP request", "webhook",
			map[string]any{"path": "/webhook", "method": "POST"},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"path"},
				Properties: map[string]*models.Property{
					"path":   {Type: "string", Pattern: "^/"},
					"method": {Type: "string", Enum: []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
				},
			}),
		trigger("schedule", "Schedule", "Start the workflow on a cron schedule", "clock",
			map[string]any{"cron": "0 * * * *", "timezone": "UTC"},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"cron"},
				Properties: map[string]*models.Property{
					"cron":     {Type: "string", MinLength: intPtr(1)},
					"timezone": {Type: "string"},
				},
			}),
		trigger("manual", "Manual", "Start the workflow by hand with a test payload", "play",
			map[string]any{"payload": map[string]any{}}, nil),

		// Data
		component(models.CategoryData, "http-request", "HTTP Request", "Call an external HTTP endpoint", "#0ea5e9", "globe",
			map[string]any{"url": "", "method": "GET", "headers": map[string]any{}, "body": "", "timeout": 30.0},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"url", "method"},
				Properties: map[string]*models.Property{
					"url":     {Type: "string"},
					"method":  {Type: "string", Enum: []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
					"headers": {Type: "object"},
					"body":    {Type: "string"},
					"timeout": {Type: "number", Minimum: ptr(1), Maximum: ptr(300)},
				},
			}),
		component(models.CategoryData, "database-query", "Database Query", "Run a parameterized SQL query", "#0ea5e9", "database",
			map[string]any{"connection": "", "query": "", "parameters": []any{}},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"query"},
				Properties: map[string]*models.Property{
					"connection": {Type: "string"},
					"query":      {Type: "string"},
					"parameters": {Type: "array"},
				},
			}),

		// Transform
		component(models.CategoryTransform, "json-transform", "JSON Transform", "Reshape data with a JSON template", "#f59e0b", "braces",
			map[string]any{"template": "{{input}}"}, templateSchema()),
		component(models.CategoryTransform, "filter", "Filter", "Keep items matching a condition", "#f59e0b", "filter",
			map[string]any{"field": "", "operator": "equals", "value": ""},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"field", "operator"},
				Properties: map[string]*models.Property{
					"field":    {Type: "string"},
					"operator": {Type: "string", Enum: []any{"equals", "not_equals", "contains", "gt", "lt", "exists"}},
					"value":    {},
				},
			}),
		component(models.CategoryTransform, "template", "Template", "Render text from the input", "#f59e0b", "text",
			map[string]any{"template": "{{input}}"}, templateSchema()),

		// Output
		component(models.CategoryOutput, "response", "Response", "Return the result to the caller", "#10b981", "reply",
			map[string]any{"statusCode": 200.0, "contentType": "application/json"},
			&models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"statusCode":  {Type: "number", Minimum: ptr(100), Maximum: ptr(599)},
					"contentType": {Type: "string"},
				},
			}),
		component(models.CategoryOutput, "log", "Log", "Write the input to the execution log", "#10b981", "scroll",
			map[string]any{"level": "info", "message": "{{input}}"},
			&models.JSONSchema{
				Type: "object",
				Properties: map[string]*models.Property{
					"level":   {Type: "string", Enum: []any{"debug", "info", "warn", "error"}},
					"message": {Type: "string"},
				},
			}),
		authed(component(models.CategoryOutput, "email", "Email", "Send the result by email", "#10b981", "mail",
			map[string]any{"to": "", "subject": "", "body": "{{input}}"},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"to"},
				Properties: map[string]*models.Property{
					"to":      {Type: "string"},
					"subject": {Type: "string"},
					"body":    {Type: "string"},
				},
			})),
		authed(component(models.CategoryOutput, "slack", "Slack", "Post the result to a Slack channel", "#10b981", "hash",
			map[string]any{"channel": "", "message": "{{input}}"},
			&models.JSONSchema{
				Type:     "object",
				Required: []string{"channel"},
				Properties: map[string]*models.Property{
					"channel": {Type: "string"},
					"message": {Type: "string"},
				},
			})),
	}
}

func component(
	category models.Category,
	componentType, label, description, color, icon string,
	defaults map[string]any,
	schema *models.JSONSchema,
) *models.ComponentDefinition {
	return &models.ComponentDefinition{
		Type:           componentType,
		Category:       category,
		Label:          label,
		Description:    description,
		Color:          color,
		Icon:           icon,
		DefaultData:    defaults,
		AllowedInputs:  models.AnyConnection(),
		AllowedOutputs: models.AnyConnection(),
		MaxInputs:      models.Unbounded,
		MaxOutputs:     models.Unbounded,
		Schema:         schema,
	}
}

func trigger(componentType, label, description, icon string, defaults map[string]any, schema *models.JSONSchema) *models.ComponentDefinition {
	def := component(models.CategoryTriggers, componentType, label, description, "#6366f1", icon, defaults, schema)
	def.AllowedInputs = models.NoConnections()
	def.MaxInputs = 0

	return def
}

func authed(def *models.ComponentDefinition) *models.ComponentDefinition {
	def.RequiresAuth = true
	def.IsAsync = true

	return def
}

func templateSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:     "object",
		Required: []string{"template"},
		Properties: map[string]*models.Property{
			"template": {Type: "string", Description: "Text with {{input}} or {{input.path}} tokens"},
		},
	}
}

func intPtr(v int) *int {
	return &v
}
