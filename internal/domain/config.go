package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Storage StorageConfig `json:"storage" yaml:"storage"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Events  EventsConfig  `json:"events" yaml:"events"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

type StorageBackend string

const (
	StorageBackendSQLite StorageBackend = "sqlite"
	StorageBackendBadger StorageBackend = "badger"
)

type StorageConfig struct {
	Backend StorageBackend `json:"backend" yaml:"backend"`
	// Path is the database file (sqlite) or directory (badger). Relative
	// paths are resolved against DataDir.
	Path        string        `json:"path" yaml:"path"`
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
	WriteQueue  int           `json:"write_queue" yaml:"write_queue"`
}

type EngineConfig struct {
	// SimulatedNodeDelay is how long placeholder builtin executors take.
	SimulatedNodeDelay time.Duration `json:"simulated_node_delay" yaml:"simulated_node_delay"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	DefaultPriority    Priority      `json:"default_priority" yaml:"default_priority"`
	PersistTimeout     time.Duration `json:"persist_timeout" yaml:"persist_timeout"`
}

type EventsConfig struct {
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}
