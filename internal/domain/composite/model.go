// Package composite defines the composite (nested-subgraph) node type.
package composite

import "github.com/nodeforge/pipelinecore/internal/domain/pipeline"

// InputMapping declares one external composite input and where inside the
// subgraph it lands ("<internal-node-id>.<internal-pin>").
type InputMapping struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	MapsTo      string `json:"maps_to"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default_value,omitempty"`
}

// OutputMapping declares one external composite output and where inside
// the subgraph it is read from.
type OutputMapping struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	MapsFrom    string `json:"maps_from"`
	Description string `json:"description,omitempty"`
}

// Definition is a reusable nested pipeline.
type Definition struct {
	CompositeID string              `json:"composite_id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Subgraph    pipeline.Subgraph   `json:"subgraph"`
	Inputs      []InputMapping      `json:"inputs"`
	Outputs     []OutputMapping     `json:"outputs"`
	Category    string              `json:"category,omitempty"`
	Color       string              `json:"color,omitempty"`
	Author      string              `json:"author,omitempty"`
	Version     string              `json:"version,omitempty"`
	CreatedAt   string              `json:"created_at,omitempty"`
	UpdatedAt   string              `json:"updated_at,omitempty"`
}

// ReferencedComposites returns the composite ids directly referenced by any
// composite-type node in this definition's subgraph — used by the static
// self-reference cycle check at save time (spec.md Invariant 2).
func (d Definition) ReferencedComposites() []string {
	var ids []string
	for _, n := range d.Subgraph.Nodes {
		if n.Type == pipeline.NodeComposite && n.CompositeID != "" {
			ids = append(ids, n.CompositeID)
		}
	}
	return ids
}
