package config

import (
	"time"

	"github.com/vietddude/ingester/internal/core/domain"
	redisclient "github.com/vietddude/ingester/internal/infra/redis"
	"github.com/vietddude/ingester/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Ingestion IngestionConfig    `yaml:"ingestion"`
	Pipelines []PipelineConfig   `yaml:"pipelines"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
}

// ServerConfig holds HTTP and gRPC health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// IngestionConfig holds remote checkpoint store settings.
type IngestionConfig struct {
	RemoteStoreURL  string        `yaml:"remote_store_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`  // per attempt, 0 = none
	RetentionPeriod time.Duration `yaml:"retention_period"` // 0 = infinite
}

// PipelineConfig holds settings for one ingestion pipeline.
type PipelineConfig struct {
	Name            string                          `yaml:"name"`
	StartCheckpoint domain.CheckpointSequenceNumber `yaml:"start_checkpoint"`
	EndCheckpoint   domain.CheckpointSequenceNumber `yaml:"end_checkpoint"` // 0 = unbounded
	Concurrency     int                             `yaml:"concurrency"`
	PollInterval    time.Duration                   `yaml:"poll_interval"`
	FetchTimeout    time.Duration                   `yaml:"fetch_timeout"` // 0 = none
}
