package domain

import "fmt"

// Workflow is the immutable input of a run. Edges are kept for callers that
// render or validate the graph; execution follows the order of Nodes.
type Workflow struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Version     string                 `json:"version" yaml:"version"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []Node                 `json:"nodes" yaml:"nodes"`
	Edges       []Edge                 `json:"edges,omitempty" yaml:"edges,omitempty"`
	Variables   map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
}

type Node struct {
	ID     string                 `json:"id" yaml:"id"`
	Type   string                 `json:"type" yaml:"type"`
	Label  string                 `json:"label,omitempty" yaml:"label,omitempty"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

type Edge struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty"`
}

// DisplayName returns the label when set, otherwise the node id.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

func (w *Workflow) Validate() error {
	if w == nil {
		return NewValidationError("workflow", "workflow cannot be nil")
	}
	if w.ID == "" {
		return NewValidationError("workflow.id", "workflow id is required")
	}

	seen := make(map[string]struct{}, len(w.Nodes))
	for i, node := range w.Nodes {
		if node.ID == "" {
			return NewValidationError(fmt.Sprintf("nodes[%d].id", i), "node id is required")
		}
		if node.Type == "" {
			return NewValidationError(fmt.Sprintf("nodes[%d].type", i), "node type is required for "+node.ID)
		}
		if _, dup := seen[node.ID]; dup {
			return NewValidationError(fmt.Sprintf("nodes[%d].id", i), "duplicate node id "+node.ID)
		}
		seen[node.ID] = struct{}{}
	}

	for i, edge := range w.Edges {
		if _, ok := seen[edge.Source]; !ok {
			return NewValidationError(fmt.Sprintf("edges[%d].source", i), "unknown source node "+edge.Source)
		}
		if _, ok := seen[edge.Target]; !ok {
			return NewValidationError(fmt.Sprintf("edges[%d].target", i), "unknown target node "+edge.Target)
		}
	}

	return nil
}
