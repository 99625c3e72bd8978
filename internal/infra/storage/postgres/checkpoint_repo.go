package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/ingester/internal/core/domain"
)

const checkpointColumns = `sequence_number, digest, timestamp_ms, tx_count, event_count,
	input_count, output_count, ingested_at`

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Save upserts a checkpoint summary.
func (r *CheckpointRepo) Save(ctx context.Context, s *domain.CheckpointSummary) error {
	query := `
		INSERT INTO checkpoints (` + checkpointColumns + `)
		VALUES (:sequence_number, :digest, :timestamp_ms, :tx_count, :event_count,
			:input_count, :output_count, :ingested_at)
		ON CONFLICT (sequence_number) DO UPDATE SET
			digest = EXCLUDED.digest,
			timestamp_ms = EXCLUDED.timestamp_ms,
			tx_count = EXCLUDED.tx_count,
			event_count = EXCLUDED.event_count,
			input_count = EXCLUDED.input_count,
			output_count = EXCLUDED.output_count,
			ingested_at = EXCLUDED.ingested_at
	`

	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("failed to save checkpoint %d: %w", s.SequenceNumber, err)
	}
	return nil
}

// GetBySequence retrieves a summary by sequence number.
func (r *CheckpointRepo) GetBySequence(
	ctx context.Context,
	seq domain.CheckpointSequenceNumber,
) (*domain.CheckpointSummary, error) {
	var s domain.CheckpointSummary
	err := r.db.GetContext(ctx, &s,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE sequence_number = $1`, seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint %d: %w", seq, err)
	}
	return &s, nil
}

// GetLatest retrieves the highest ingested checkpoint.
func (r *CheckpointRepo) GetLatest(ctx context.Context) (*domain.CheckpointSummary, error) {
	var s domain.CheckpointSummary
	err := r.db.GetContext(ctx, &s,
		`SELECT `+checkpointColumns+` FROM checkpoints ORDER BY sequence_number DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	return &s, nil
}

// DeleteOlderThan deletes summaries ingested before cutoff.
func (r *CheckpointRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE ingested_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// DeleteBySequence deletes the given summaries in one statement.
func (r *CheckpointRepo) DeleteBySequence(
	ctx context.Context,
	seqs []domain.CheckpointSequenceNumber,
) (int64, error) {
	if len(seqs) == 0 {
		return 0, nil
	}

	// Sequence numbers may exceed int64, so they travel as decimal text.
	values := make([]string, len(seqs))
	for i, seq := range seqs {
		values[i] = strconv.FormatUint(seq, 10)
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE sequence_number = ANY($1::numeric[])`,
		pq.Array(values),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return res.RowsAffected()
}
