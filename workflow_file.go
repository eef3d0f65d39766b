package conduit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eleven-am/conduit/internal/domain"
)

// LoadWorkflow reads a workflow definition from a YAML or JSON file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	return ParseWorkflow(data)
}

// ParseWorkflow decodes and validates a workflow definition. JSON is accepted
// as a subset of YAML.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var wf domain.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, &domain.ValidationError{Field: "workflow", Message: "cannot parse definition", Err: err}
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}
