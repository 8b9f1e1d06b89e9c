package models

import (
	"encoding/json"
	"slices"
)

// Unbounded is the MaxInputs/MaxOutputs value meaning "no limit".
const Unbounded = -1

// ConnectionRule constrains which categories or types a port may connect to.
// The zero value and the wildcard "any" accept everything.
type ConnectionRule struct {
	Any   bool
	Items []string
}

// AnyConnection accepts every category.
func AnyConnection() ConnectionRule {
	return ConnectionRule{Any: true}
}

// OnlyConnections accepts the listed categories or types.
func OnlyConnections(items ...string) ConnectionRule {
	return ConnectionRule{Items: items}
}

// NoConnections accepts nothing.
func NoConnections() ConnectionRule {
	return ConnectionRule{Items: []string{}}
}

// Allows reports whether a node of the given category and type matches the rule.
func (r ConnectionRule) Allows(category Category, nodeType string) bool {
	if r.Any || r.Items == nil {
		return true
	}

	return slices.Contains(r.Items, string(category)) || slices.Contains(r.Items, nodeType)
}

// MarshalJSON encodes the wildcard as the string "any" and lists as arrays.
func (r ConnectionRule) MarshalJSON() ([]byte, error) {
	if r.Any || r.Items == nil {
		return json.Marshal("any")
	}

	return json.Marshal(r.Items)
}

// UnmarshalJSON accepts either "any" or an array of strings.
func (r *ConnectionRule) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ConnectionRule{}

		return nil
	}

	var wildcard string
	if err := json.Unmarshal(data, &wildcard); err == nil {
		*r = ConnectionRule{Any: wildcard == "any"}
		if !r.Any {
			r.Items = []string{wildcard}
		}

		return nil
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	*r = ConnectionRule{Items: items}

	return nil
}

// ModelInfo describes the catalog model backing an AI component.
type ModelInfo struct {
	Provider     string   `json:"provider"`
	ModelID      string   `json:"model_id"`
	Capabilities []string `json:"capabilities,omitempty"`
	IsActive     bool     `json:"is_active"`
}

// ComponentDefinition describes one node type of the palette. Definitions are
// immutable after construction; callers must not mutate DefaultData in place,
// NewDefaultData hands out copies for that.
type ComponentDefinition struct {
	Type           string         `json:"type"`
	Category       Category       `json:"category"`
	Label          string         `json:"label"`
	Description    string         `json:"description"`
	Color          string         `json:"color"`
	Icon           string         `json:"icon,omitempty"`
	DefaultData    map[string]any `json:"default_data"`
	AllowedInputs  ConnectionRule `json:"allowed_inputs"`
	AllowedOutputs ConnectionRule `json:"allowed_outputs"`
	MaxInputs      int            `json:"max_inputs"`
	MaxOutputs     int            `json:"max_outputs"`
	IsAsync        bool           `json:"is_async"`
	RequiresAuth   bool           `json:"requires_auth"`
	IsBeta         bool           `json:"is_beta"`
	ModelInfo      *ModelInfo     `json:"model_info,omitempty"`
	Schema         *JSONSchema    `json:"schema,omitempty"`
}

// NewDefaultData returns a fresh copy of the default parameter bag.
func (d *ComponentDefinition) NewDefaultData() map[string]any {
	data := DeepCopyMap(d.DefaultData)
	if data == nil {
		data = map[string]any{}
	}

	return data
}

// HasInputPort reports whether nodes of this type accept incoming connections.
func (d *ComponentDefinition) HasInputPort() bool {
	return d.Category != CategoryTriggers && d.MaxInputs != 0
}
