package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

type MockNodeExecutor struct {
	mock.Mock
}

var _ ports.NodeExecutor = (*MockNodeExecutor)(nil)

func (m *MockNodeExecutor) Execute(ctx context.Context, node domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
	args := m.Called(ctx, node, runCtx)
	result, _ := args.Get(0).(map[string]interface{})
	return result, args.Error(1)
}

func (m *MockNodeExecutor) ValidateConfig(config map[string]interface{}) error {
	args := m.Called(config)
	return args.Error(0)
}

// Factory hands out the same mock on every call so expectations can be
// asserted across node invocations.
func (m *MockNodeExecutor) Factory() ports.ExecutorFactory {
	return func() ports.NodeExecutor { return m }
}
