package storage

import (
	"context"
	"time"

	"github.com/vietddude/ingester/internal/core/domain"
)

// Lookups return (nil, nil) when the record does not exist.

// CursorRepository handles pipeline cursor storage
type CursorRepository interface {
	// Get retrieves the cursor for a pipeline
	Get(ctx context.Context, pipeline string) (*domain.Cursor, error)

	// GetAll retrieves every pipeline cursor
	GetAll(ctx context.Context) ([]*domain.Cursor, error)

	// Save saves/updates the cursor
	Save(ctx context.Context, cursor *domain.Cursor) error
}

// CheckpointRepository handles ingested checkpoint summaries
type CheckpointRepository interface {
	// Save upserts a checkpoint summary
	Save(ctx context.Context, summary *domain.CheckpointSummary) error

	// GetBySequence retrieves a summary by sequence number
	GetBySequence(
		ctx context.Context,
		seq domain.CheckpointSequenceNumber,
	) (*domain.CheckpointSummary, error)

	// GetLatest retrieves the summary with the highest sequence number
	GetLatest(ctx context.Context) (*domain.CheckpointSummary, error)

	// DeleteOlderThan deletes summaries ingested before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteBySequence deletes the given summaries
	DeleteBySequence(ctx context.Context, seqs []domain.CheckpointSequenceNumber) (int64, error)
}

// FailedCheckpointRepository handles the failed checkpoint queue
type FailedCheckpointRepository interface {
	// Add records a failed checkpoint, replacing any record with the same ID
	Add(ctx context.Context, fc *domain.FailedCheckpoint) error

	// GetAll retrieves all failed checkpoints for a pipeline, lowest sequence first
	GetAll(ctx context.Context, pipeline string) ([]*domain.FailedCheckpoint, error)

	// Count returns the count of failed checkpoints
	Count(ctx context.Context, pipeline string) (int, error)

	// MarkResolved removes a failed checkpoint
	MarkResolved(ctx context.Context, pipeline string, id string) error
}
