package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/indexing/emitter"
	"github.com/vietddude/ingester/internal/infra/storage"
)

// Indexer is the main orchestrator of one ingestion pipeline
type Indexer interface {
	// Start runs the pipeline until ctx is cancelled, Stop is called, or the
	// end checkpoint is committed
	Start(ctx context.Context) error

	// Stop gracefully stops the pipeline
	Stop() error

	// GetStatus returns current pipeline status
	GetStatus() Status
}

// Fetcher retrieves a single checkpoint. *ingestion.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, checkpoint uint64) (*domain.Checkpoint, error)
}

// Metrics receives pipeline progress. *metrics.IngestionMetrics satisfies it.
type Metrics interface {
	RecordCommitted(pipeline string, seq domain.CheckpointSequenceNumber)
	RecordFailure(pipeline string, kind domain.FailureKind)
}

type Status struct {
	Pipeline            string
	Running             bool
	Finished            bool
	NextCheckpoint      domain.CheckpointSequenceNumber
	CommittedCheckpoint domain.CheckpointSequenceNumber
	HasCommitted        bool
	LastCommitAt        time.Time
	LastError           string
	FailedCheckpoints   int
}

// Config holds pipeline configuration
type Config struct {
	Name           string
	Fetcher        Fetcher
	Emitter        emitter.Emitter
	CursorRepo     storage.CursorRepository
	CheckpointRepo storage.CheckpointRepository
	FailedRepo     storage.FailedCheckpointRepository
	Metrics        Metrics
	Logger         *slog.Logger

	// StartCheckpoint is used when the pipeline has no cursor yet.
	StartCheckpoint domain.CheckpointSequenceNumber
	// EndCheckpoint is the last checkpoint to ingest; 0 means unbounded.
	EndCheckpoint domain.CheckpointSequenceNumber
	// Concurrency is the number of checkpoints fetched in parallel per window.
	Concurrency int
	// PollInterval is the wait after a window ends in a failure.
	PollInterval time.Duration
	// FetchTimeout bounds a single Fetch including its retries; 0 disables it.
	FetchTimeout time.Duration
}

const (
	DefaultConcurrency  = 8
	DefaultPollInterval = 2 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Emitter == nil {
		c.Emitter = emitter.Nop{}
	}
}
