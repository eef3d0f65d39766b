package conduit

import (
	"log/slog"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
)

type Config = domain.Config

type StorageConfig = domain.StorageConfig

type StorageBackend = domain.StorageBackend

const (
	StorageBackendSQLite = domain.StorageBackendSQLite
	StorageBackendBadger = domain.StorageBackendBadger
)

type EngineConfig = domain.EngineConfig

type EventsConfig = domain.EventsConfig

type LoggingConfig = domain.LoggingConfig

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// LoadConfig reads a YAML config file; unset fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder(dataDir string) *ConfigBuilder {
	config := DefaultConfig()
	config.DataDir = dataDir
	return &ConfigBuilder{config: config}
}

func (cb *ConfigBuilder) WithStorage(backend StorageBackend, path string) *ConfigBuilder {
	cb.config.WithStorage(backend, path)
	return cb
}

func (cb *ConfigBuilder) WithSimulatedNodeDelay(delay time.Duration) *ConfigBuilder {
	cb.config.WithSimulatedNodeDelay(delay)
	return cb
}

func (cb *ConfigBuilder) WithSubscriberBuffer(size int) *ConfigBuilder {
	cb.config.WithSubscriberBuffer(size)
	return cb
}

func (cb *ConfigBuilder) WithLogger(logger *slog.Logger) *ConfigBuilder {
	cb.config.WithLogger(logger)
	return cb
}

func (cb *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	cb.config.Logging.Level = level
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, error) {
	if err := cb.config.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cb.config.Validate(); err != nil {
		return nil, err
	}
	return cb.config, nil
}
