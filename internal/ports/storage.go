package ports

import (
	"context"

	"github.com/eleven-am/conduit/internal/domain"
)

type StoragePort interface {
	Migrate(ctx context.Context) error

	SaveRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, runID string) (domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	ListRunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.Run, error)
	// ListUnfinishedRuns returns every run not yet in a terminal status, oldest first.
	ListUnfinishedRuns(ctx context.Context) ([]domain.Run, error)

	AppendLog(ctx context.Context, event domain.Event) error
	FetchLogs(ctx context.Context, runID string) ([]domain.Event, error)

	SaveTemplate(ctx context.Context, template domain.ParameterTemplate) error
	ListTemplates(ctx context.Context, workflowID string) ([]domain.ParameterTemplate, error)
	DeleteTemplate(ctx context.Context, templateID string) error

	SaveTrigger(ctx context.Context, trigger domain.Trigger) error
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)
	DeleteTrigger(ctx context.Context, triggerID string) error

	Close() error
}

// DefaultListLimit applies when a caller passes a non-positive limit.
const DefaultListLimit = 20
