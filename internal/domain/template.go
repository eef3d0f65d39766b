package domain

import (
	"time"

	"github.com/google/uuid"
)

type ParameterTemplate struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Name       string                 `json:"name"`
	Params     map[string]interface{} `json:"params"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Trigger is a stored automation rule. The engine persists it but never fires it.
type Trigger struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Type       string                 `json:"type"`
	Config     map[string]interface{} `json:"config"`
	Enabled    bool                   `json:"enabled"`
	CreatedAt  time.Time              `json:"created_at"`
}

func NewTemplateID() string {
	return "tpl_" + uuid.New().String()
}

func NewTriggerID() string {
	return "trg_" + uuid.New().String()
}
