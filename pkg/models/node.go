// Package models defines core node-based workflow models for graph editing
package models

import "maps"

// Category groups node types in the palette and decides which executor runs them.
type Category string

const (
	CategoryTriggers  Category = "triggers"  // Entry points, no input port
	CategoryData      Category = "data"      // Fetch or store data
	CategoryTransform Category = "transform" // Reshape data
	CategoryAI        Category = "ai"        // One definition per catalog model
	CategoryOutput    Category = "output"    // Deliver results
)

// AllCategories is the palette display order.
var AllCategories = []Category{
	CategoryTriggers,
	CategoryData,
	CategoryTransform,
	CategoryAI,
	CategoryOutput,
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryTriggers, CategoryData, CategoryTransform, CategoryAI, CategoryOutput:
		return true
	default:
		return false
	}
}

// Position is a point in canvas space. Units are interpreted at render time
// against the current zoom and pan.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

// Connection is a directed edge from the output port of Source to the input
// port of Target.
type Connection struct {
	ID     string `json:"id"     validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// Clone returns a copy of the connection, nil for nil.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}

	clone := *c

	return &clone
}

// WorkflowNode represents a placed component instance in a workflow.
type WorkflowNode struct {
	ID       string         `json:"id"       validate:"required"`
	Type     string         `json:"type"     validate:"required"`
	Category Category       `json:"category" validate:"required"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
	Label    string         `json:"label"`
}

// IsTrigger reports whether the node is an entry point.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Category == CategoryTriggers
}

// Clone returns a copy of the node with its own data map. A nil node clones
// to nil.
func (n *WorkflowNode) Clone() *WorkflowNode {
	if n == nil {
		return nil
	}

	c := *n
	c.Data = DeepCopyMap(n.Data)

	return &c
}

// DeepCopyMap copies nested maps and slices so the copy can be mutated freely.
func DeepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}

	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}

		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)

		return out
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}
