package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/dukex/agentflow/pkg/template"
)

// Transform renders the node's "template" parameter against the input.
// json-transform parses the rendered text as JSON; filter keeps the items of
// the input that match its condition.
type Transform struct {
	now func() time.Time
}

func (t *Transform) Execute(_ context.Context, node *models.WorkflowNode, input any) Result {
	if node.Type == "filter" {
		return t.filter(node, input)
	}

	tmpl, ok := node.Data["template"].(string)
	if !ok {
		return Failed("transform node has no template", ErrorDetails{Code: CodeInvalidConfiguration, Timestamp: t.now().UTC()})
	}

	rendered := template.Resolve(tmpl, input)

	var data any = rendered
	if node.Type == "json-transform" {
		var parsed any
		if err := json.Unmarshal([]byte(rendered), &parsed); err != nil {
			return Failed(fmt.Sprintf("rendered template is not valid JSON: %v", err),
				ErrorDetails{Code: CodeInvalidConfiguration, Timestamp: t.now().UTC()})
		}

		data = parsed
	}

	return Succeeded(data, Metadata{Timestamp: t.now().UTC()})
}

func (t *Transform) filter(node *models.WorkflowNode, input any) Result {
	field, _ := node.Data["field"].(string)
	operator, _ := node.Data["operator"].(string)
	expected := node.Data["value"]

	match := func(item any) bool {
		value, found := template.Lookup(item, field)
		if field == "" {
			value, found = item, item != nil
		}

		return compare(operator, value, found, expected)
	}

	var data any

	switch items := normalizeValue(input).(type) {
	case []any:
		kept := make([]any, 0, len(items))

		for _, item := range items {
			if match(item) {
				kept = append(kept, item)
			}
		}

		data = kept
	default:
		if match(items) {
			data = items
		}
	}

	return Succeeded(data, Metadata{Timestamp: t.now().UTC()})
}

func compare(operator string, value any, found bool, expected any) bool {
	switch operator {
	case "exists":
		return found
	case "not_equals":
		return !found || !equal(value, expected)
	case "contains":
		return found && strings.Contains(fmt.Sprint(value), fmt.Sprint(expected))
	case "gt", "lt":
		a, aok := toFloat(value)
		b, bok := toFloat(expected)

		if !found || !aok || !bok {
			return false
		}

		if operator == "gt" {
			return a > b
		}

		return a < b
	default:
		return found && equal(value, expected)
	}
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}

	return reflect.DeepEqual(a, b) || fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}

	return out
}

// Output delivers the input unchanged. Log nodes also write their rendered
// message to the execution log.
type Output struct {
	logger *slog.Logger
	now    func() time.Time
}

func (o *Output) Execute(ctx context.Context, node *models.WorkflowNode, input any) Result {
	if node.Type == "log" {
		message, _ := node.Data["message"].(string)
		if message == "" {
			message = "{{input}}"
		}

		level := slog.LevelInfo
		if raw, ok := node.Data["level"].(string); ok {
			_ = level.UnmarshalText([]byte(raw))
		}

		o.logger.Log(ctx, level, template.Resolve(message, input), "node_id", node.ID)
	}

	return Succeeded(input, Metadata{Timestamp: o.now().UTC()})
}
