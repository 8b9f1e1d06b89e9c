package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/agentflow/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidData = errors.New("node data does not match component schema")

// ValidateData checks a node parameter bag against the definition's schema.
// Definitions without a schema accept anything.
func ValidateData(def *models.ComponentDefinition, data map[string]any) error {
	if def == nil || def.Schema == nil {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(def.Schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("validate %s/%s data: %w", def.Category, def.Type, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s/%s: %s", ErrInvalidData, def.Category, def.Type, strings.Join(problems, "; "))
	}

	return nil
}

// ValidateNode resolves the node's definition and validates its data. Unknown
// components are reported as ErrComponentNotFound.
func (r *Registry) ValidateNode(node *models.WorkflowNode) error {
	def, ok := r.Get(node.Category, node.Type)
	if !ok {
		return fmt.Errorf("%w: %s/%s (node %s)", ErrComponentNotFound, node.Category, node.Type, node.ID)
	}

	if err := ValidateData(def, node.Data); err != nil {
		return err
	}

	if node.Category == models.CategoryTriggers && node.Type == "schedule" {
		return validateSchedule(node.Data)
	}

	return nil
}

// validateSchedule checks what the schema cannot: the cron expression parses
// and the timezone, when set, is known.
func validateSchedule(data map[string]any) error {
	expr, _ := data["cron"].(string)
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: triggers/schedule: invalid cron expression %q: %w", ErrInvalidData, expr, err)
	}

	if tz, _ := data["timezone"].(string); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: triggers/schedule: unknown timezone %q", ErrInvalidData, tz)
		}
	}

	return nil
}
