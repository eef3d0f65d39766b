package conduit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/conduit/internal/adapters/engine"
	"github.com/eleven-am/conduit/internal/adapters/events"
	"github.com/eleven-am/conduit/internal/adapters/health"
	"github.com/eleven-am/conduit/internal/adapters/node_registry"
	"github.com/eleven-am/conduit/internal/adapters/storage/badger"
	"github.com/eleven-am/conduit/internal/adapters/storage/sqlite"
	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

// Manager wires the engine to its registry, event bus and store. Every run
// operation of the engine is available on it directly.
type Manager struct {
	*engine.Engine

	config   Config
	registry *node_registry.Adapter
	storage  ports.StoragePort
	bus      *events.Manager
	health   *health.Checker
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New opens the configured store, applies pending migrations and returns a
// manager with the builtin node catalog registered. A nil config means
// DefaultConfig.
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		var err error
		if logger, err = ports.NewLogger(cfg.Logging, nil); err != nil {
			return nil, err
		}
	}

	storage, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.PersistTimeout)
	defer cancel()
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}

	registry := node_registry.NewWithBuiltins(logger, cfg.Engine.SimulatedNodeDelay)
	bus := events.NewManager(logger, cfg.Events.SubscriberBuffer)

	eng := engine.NewEngine(cfg.Engine, registry, storage, bus, logger)

	recovered, err := eng.RecoverInterrupted(ctx)
	if err != nil {
		bus.Close()
		_ = storage.Close()
		return nil, err
	}

	logger.Info("conduit ready",
		"backend", string(cfg.Storage.Backend),
		"path", cfg.StoragePath(),
		"node_types", registry.Count(),
		"recovered_runs", recovered)

	return &Manager{
		Engine:   eng,
		config:   *cfg,
		registry: registry,
		storage:  storage,
		bus:      bus,
		health:   health.NewChecker(eng, storage, logger),
		logger:   logger,
	}, nil
}

func openStorage(cfg *Config, logger *slog.Logger) (ports.StoragePort, error) {
	path := cfg.StoragePath()

	switch cfg.Storage.Backend {
	case domain.StorageBackendBadger:
		store, err := badger.Open(path, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case domain.StorageBackendSQLite:
		store, err := sqlite.Open(path, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, domain.NewConfigError("storage.backend", fmt.Errorf("%w: %q", domain.ErrInvalidConfig, cfg.Storage.Backend))
	}
}

// Config returns the effective configuration after defaults were applied.
func (m *Manager) Config() Config {
	return m.config
}

// HealthStatus is the result of a health probe.
type HealthStatus = health.Status

// Health probes the store and reports the engine's current load.
func (m *Manager) Health(ctx context.Context) HealthStatus {
	return m.health.Check(ctx)
}

// RegisterNode registers a typed node whose config is decoded into C before
// every execution.
func RegisterNode[C any](m *Manager, nodeType string, node TypedNode[C]) error {
	return node_registry.RegisterTyped[C](m.registry, nodeType, node)
}

// Close shuts the engine down, then releases the event bus and the store.
// Without a deadline on ctx, the configured shutdown timeout applies.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.config.Engine.ShutdownTimeout)
			defer cancel()
		}

		shutdownErr := m.Engine.Shutdown(ctx)
		m.bus.Close()
		storageErr := m.storage.Close()

		m.closeErr = errors.Join(shutdownErr, storageErr)
		if m.closeErr != nil {
			m.logger.Warn("conduit closed with errors", "error", m.closeErr)
		} else {
			m.logger.Info("conduit closed")
		}
	})
	return m.closeErr
}
