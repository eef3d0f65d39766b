package domain

import (
	"sync/atomic"
	"time"
)

type ExecutionMetrics struct {
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`
	RunsCancelled int64 `json:"runs_cancelled"`
	RunsPaused    int64 `json:"runs_paused"`
	RunsResumed   int64 `json:"runs_resumed"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`

	PersistenceFailures int64 `json:"persistence_failures"`

	TotalNodeExecutionTimeNs int64 `json:"total_node_execution_time_ns"`
}

func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{}
}

func (m *ExecutionMetrics) IncrementRunsStarted() {
	atomic.AddInt64(&m.RunsStarted, 1)
}

func (m *ExecutionMetrics) IncrementRunsCompleted() {
	atomic.AddInt64(&m.RunsCompleted, 1)
}

func (m *ExecutionMetrics) IncrementRunsFailed() {
	atomic.AddInt64(&m.RunsFailed, 1)
}

func (m *ExecutionMetrics) IncrementRunsCancelled() {
	atomic.AddInt64(&m.RunsCancelled, 1)
}

func (m *ExecutionMetrics) IncrementRunsPaused() {
	atomic.AddInt64(&m.RunsPaused, 1)
}

func (m *ExecutionMetrics) IncrementRunsResumed() {
	atomic.AddInt64(&m.RunsResumed, 1)
}

func (m *ExecutionMetrics) IncrementPersistenceFailures() {
	atomic.AddInt64(&m.PersistenceFailures, 1)
}

func (m *ExecutionMetrics) RecordNodeExecution(duration time.Duration, success bool) {
	atomic.AddInt64(&m.NodesExecuted, 1)
	atomic.AddInt64(&m.TotalNodeExecutionTimeNs, duration.Nanoseconds())
	if success {
		atomic.AddInt64(&m.NodesSucceeded, 1)
	} else {
		atomic.AddInt64(&m.NodesFailed, 1)
	}
}

func (m *ExecutionMetrics) GetSnapshot() ExecutionMetrics {
	return ExecutionMetrics{
		RunsStarted:              atomic.LoadInt64(&m.RunsStarted),
		RunsCompleted:            atomic.LoadInt64(&m.RunsCompleted),
		RunsFailed:               atomic.LoadInt64(&m.RunsFailed),
		RunsCancelled:            atomic.LoadInt64(&m.RunsCancelled),
		RunsPaused:               atomic.LoadInt64(&m.RunsPaused),
		RunsResumed:              atomic.LoadInt64(&m.RunsResumed),
		NodesExecuted:            atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:           atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:              atomic.LoadInt64(&m.NodesFailed),
		PersistenceFailures:      atomic.LoadInt64(&m.PersistenceFailures),
		TotalNodeExecutionTimeNs: atomic.LoadInt64(&m.TotalNodeExecutionTimeNs),
	}
}

func (m *ExecutionMetrics) AverageNodeExecutionTime() time.Duration {
	executed := atomic.LoadInt64(&m.NodesExecuted)
	if executed == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.TotalNodeExecutionTimeNs) / executed)
}
