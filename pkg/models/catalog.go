package models

import "time"

// CatalogModel is one entry of the external model catalog, in the shape the
// AI Gateway returns it.
type CatalogModel struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	ModelID      string         `json:"model_id"`
	ModelType    string         `json:"model_type"`
	Capabilities []string       `json:"capabilities"`
	Tags         []string       `json:"tags"`
	IsActive     bool           `json:"is_active"`
	Parameters   map[string]any `json:"parameters"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CatalogFilter narrows ListActiveModels. Empty fields do not filter.
type CatalogFilter struct {
	ModelType string `json:"model_type,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Tag       string `json:"tag,omitempty"`
}
