package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/ingester/internal/core/domain"
)

// FailedCheckpointRepo implements storage.FailedCheckpointRepository using PostgreSQL.
type FailedCheckpointRepo struct {
	db *DB
}

// NewFailedCheckpointRepo creates a new PostgreSQL failed checkpoint repository.
func NewFailedCheckpointRepo(db *DB) *FailedCheckpointRepo {
	return &FailedCheckpointRepo{db: db}
}

// Add upserts a failed checkpoint.
func (r *FailedCheckpointRepo) Add(ctx context.Context, fc *domain.FailedCheckpoint) error {
	query := `
		INSERT INTO failed_checkpoints
			(id, pipeline, sequence_number, kind, error_msg, attempts, created_at, last_attempt)
		VALUES
			(:id, :pipeline, :sequence_number, :kind, :error_msg, :attempts, :created_at, :last_attempt)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			error_msg = EXCLUDED.error_msg,
			attempts = EXCLUDED.attempts,
			last_attempt = EXCLUDED.last_attempt
	`
	if _, err := r.db.NamedExecContext(ctx, query, fc); err != nil {
		return fmt.Errorf("failed to add failed checkpoint: %w", err)
	}
	return nil
}

// GetAll returns all failed checkpoints for a pipeline.
func (r *FailedCheckpointRepo) GetAll(
	ctx context.Context,
	pipeline string,
) ([]*domain.FailedCheckpoint, error) {
	var out []*domain.FailedCheckpoint
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, pipeline, sequence_number, kind, error_msg, attempts, created_at, last_attempt
		FROM failed_checkpoints
		WHERE pipeline = $1
		ORDER BY sequence_number, id
	`, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed checkpoints: %w", err)
	}
	return out, nil
}

// Count returns the count of failed checkpoints.
func (r *FailedCheckpointRepo) Count(ctx context.Context, pipeline string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM failed_checkpoints WHERE pipeline = $1`, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed checkpoints: %w", err)
	}
	return count, nil
}

// MarkResolved removes a failed checkpoint.
func (r *FailedCheckpointRepo) MarkResolved(ctx context.Context, pipeline string, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM failed_checkpoints WHERE pipeline = $1 AND id = $2`, pipeline, id)
	if err != nil {
		return fmt.Errorf("failed to resolve failed checkpoint: %w", err)
	}
	return nil
}
