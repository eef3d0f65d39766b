package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusDraining  = "draining"
	StatusUnhealthy = "unhealthy"
)

const defaultProbeTimeout = 2 * time.Second

// EngineView is the slice of the engine the checker reads.
type EngineView interface {
	BootID() string
	IsClosed() bool
	ActiveRuns() []domain.Run
	Metrics() domain.ExecutionMetrics
	BusStats() ports.BusStats
}

type Checker struct {
	engine       EngineView
	storage      ports.StoragePort
	logger       *slog.Logger
	probeTimeout time.Duration
}

type Status struct {
	Healthy             bool           `json:"healthy"`
	Status              string         `json:"status"`
	BootID              string         `json:"boot_id"`
	ActiveRuns          int            `json:"active_runs"`
	PersistenceFailures int64          `json:"persistence_failures"`
	StorageError        string         `json:"storage_error,omitempty"`
	Bus                 ports.BusStats `json:"bus"`
	CheckedAt           time.Time      `json:"checked_at"`
}

func NewChecker(engine EngineView, storage ports.StoragePort, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		engine:       engine,
		storage:      storage,
		logger:       logger.With("component", "health-checker"),
		probeTimeout: defaultProbeTimeout,
	}
}

// Check probes storage with a one-row read and folds in the engine counters.
// A failed probe makes the status unhealthy; earlier persistence failures only
// degrade it.
func (hc *Checker) Check(ctx context.Context) Status {
	metrics := hc.engine.Metrics()
	status := Status{
		Healthy:             true,
		Status:              StatusHealthy,
		BootID:              hc.engine.BootID(),
		ActiveRuns:          len(hc.engine.ActiveRuns()),
		PersistenceFailures: metrics.PersistenceFailures,
		Bus:                 hc.engine.BusStats(),
		CheckedAt:           time.Now().UTC(),
	}

	if metrics.PersistenceFailures > 0 {
		status.Status = StatusDegraded
	}

	if hc.engine.IsClosed() {
		status.Status = StatusDraining
	}

	probeCtx, cancel := context.WithTimeout(ctx, hc.probeTimeout)
	defer cancel()

	if _, err := hc.storage.ListRuns(probeCtx, 1); err != nil {
		hc.logger.Warn("storage probe failed", "error", err)
		status.Healthy = false
		status.Status = StatusUnhealthy
		status.StorageError = err.Error()
	}

	return status
}

// IsReady reports whether new runs would be accepted and persisted.
func (hc *Checker) IsReady(ctx context.Context) bool {
	status := hc.Check(ctx)
	return status.Healthy && status.Status != StatusDraining
}
