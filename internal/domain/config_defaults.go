package domain

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Storage: DefaultStorageConfig(),
		Engine:  DefaultEngineConfig(),
		Events:  DefaultEventsConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:     StorageBackendSQLite,
		Path:        "executions.db",
		BusyTimeout: 5 * time.Second,
		WriteQueue:  256,
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SimulatedNodeDelay: 500 * time.Millisecond,
		ShutdownTimeout:    30 * time.Second,
		DefaultPriority:    PriorityMedium,
		PersistTimeout:     10 * time.Second,
	}
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		SubscriberBuffer: 1024,
	}
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}

// LoadConfig reads a YAML file and fills every unset field from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError("file", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewConfigError("file", fmt.Errorf("parse %s: %w", path, err))
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) ApplyDefaults() error {
	if err := mergo.Merge(c, DefaultConfig()); err != nil {
		return NewConfigError("defaults", err)
	}
	return nil
}

// StoragePath resolves Storage.Path against DataDir.
func (c *Config) StoragePath() string {
	if filepath.IsAbs(c.Storage.Path) || c.DataDir == "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, c.Storage.Path)
}

func (c *Config) WithStorage(backend StorageBackend, path string) *Config {
	c.Storage.Backend = backend
	c.Storage.Path = path
	return c
}

func (c *Config) WithSimulatedNodeDelay(delay time.Duration) *Config {
	c.Engine.SimulatedNodeDelay = delay
	return c
}

func (c *Config) WithSubscriberBuffer(size int) *Config {
	c.Events.SubscriberBuffer = size
	return c
}

func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendSQLite, StorageBackendBadger:
	default:
		return NewConfigError("storage.backend", fmt.Errorf("%w: %q", ErrInvalidConfig, c.Storage.Backend))
	}
	if c.Storage.Path == "" {
		return NewConfigError("storage.path", ErrInvalidConfig)
	}
	if c.Storage.WriteQueue < 0 {
		return NewConfigError("storage.write_queue", ErrInvalidConfig)
	}
	if c.Engine.SimulatedNodeDelay < 0 {
		return NewConfigError("engine.simulated_node_delay", ErrInvalidConfig)
	}
	if !c.Engine.DefaultPriority.IsValid() {
		return NewConfigError("engine.default_priority", fmt.Errorf("%w: %q", ErrInvalidConfig, c.Engine.DefaultPriority))
	}
	if c.Events.SubscriberBuffer <= 0 {
		return NewConfigError("events.subscriber_buffer", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return NewConfigError("logging.level", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return NewConfigError("logging.format", fmt.Errorf("%w: %q", ErrInvalidConfig, c.Logging.Format))
	}
	return nil
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
	}
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{
		Field: field,
		Err:   err,
	}
}
