package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

type MockStoragePort struct {
	mock.Mock
}

var _ ports.StoragePort = (*MockStoragePort)(nil)

func (m *MockStoragePort) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStoragePort) SaveRun(ctx context.Context, run domain.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStoragePort) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	args := m.Called(ctx, runID)
	run, _ := args.Get(0).(domain.Run)
	return run, args.Error(1)
}

func (m *MockStoragePort) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]domain.Run)
	return runs, args.Error(1)
}

func (m *MockStoragePort) ListRunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.Run, error) {
	args := m.Called(ctx, workflowID, limit)
	runs, _ := args.Get(0).([]domain.Run)
	return runs, args.Error(1)
}

func (m *MockStoragePort) ListUnfinishedRuns(ctx context.Context) ([]domain.Run, error) {
	args := m.Called(ctx)
	runs, _ := args.Get(0).([]domain.Run)
	return runs, args.Error(1)
}

func (m *MockStoragePort) AppendLog(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStoragePort) FetchLogs(ctx context.Context, runID string) ([]domain.Event, error) {
	args := m.Called(ctx, runID)
	events, _ := args.Get(0).([]domain.Event)
	return events, args.Error(1)
}

func (m *MockStoragePort) SaveTemplate(ctx context.Context, template domain.ParameterTemplate) error {
	args := m.Called(ctx, template)
	return args.Error(0)
}

func (m *MockStoragePort) ListTemplates(ctx context.Context, workflowID string) ([]domain.ParameterTemplate, error) {
	args := m.Called(ctx, workflowID)
	templates, _ := args.Get(0).([]domain.ParameterTemplate)
	return templates, args.Error(1)
}

func (m *MockStoragePort) DeleteTemplate(ctx context.Context, templateID string) error {
	args := m.Called(ctx, templateID)
	return args.Error(0)
}

func (m *MockStoragePort) SaveTrigger(ctx context.Context, trigger domain.Trigger) error {
	args := m.Called(ctx, trigger)
	return args.Error(0)
}

func (m *MockStoragePort) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	args := m.Called(ctx, workflowID)
	triggers, _ := args.Get(0).([]domain.Trigger)
	return triggers, args.Error(1)
}

func (m *MockStoragePort) DeleteTrigger(ctx context.Context, triggerID string) error {
	args := m.Called(ctx, triggerID)
	return args.Error(0)
}

func (m *MockStoragePort) Close() error {
	args := m.Called()
	return args.Error(0)
}
