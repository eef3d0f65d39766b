package domain

import (
	"dario.cat/mergo"
)

// MergeVariables overlays results onto current. Nested maps are merged key by
// key, later values win, and slices are appended. Neither input is modified
// and the result shares no maps or slices with them.
func MergeVariables(current, results map[string]interface{}) (map[string]interface{}, error) {
	merged := CopyMap(current)
	if merged == nil {
		merged = make(map[string]interface{}, len(results))
	}

	if len(results) == 0 {
		return merged, nil
	}

	if err := mergo.Merge(&merged, CopyMap(results),
		mergo.WithOverride,
		mergo.WithAppendSlice); err != nil {
		return nil, err
	}

	return merged, nil
}

// InitialVariables seeds a run context from workflow variables overlaid with
// the caller's params.
func InitialVariables(workflow *Workflow, params map[string]interface{}) (map[string]interface{}, error) {
	var base map[string]interface{}
	if workflow != nil {
		base = workflow.Variables
	}
	return MergeVariables(base, params)
}

// CopyMap deep-copies nested maps and slices. Other values are copied as is.
func CopyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CopyMap(val)
	case []interface{}:
		if val == nil {
			return val
		}
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
