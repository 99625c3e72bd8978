package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/ingester/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Save upserts a pipeline cursor.
func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	query := `
		INSERT INTO cursors (pipeline, sequence_number, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (pipeline) DO UPDATE SET
			sequence_number = EXCLUDED.sequence_number,
			updated_at = EXCLUDED.updated_at
	`

	updatedAt := cursor.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query, cursor.Pipeline, cursor.SequenceNumber, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves a cursor by pipeline name.
func (r *CursorRepo) Get(ctx context.Context, pipeline string) (*domain.Cursor, error) {
	var cursor domain.Cursor
	err := r.db.GetContext(ctx, &cursor, `
		SELECT pipeline, sequence_number, updated_at
		FROM cursors
		WHERE pipeline = $1
	`, pipeline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &cursor, nil
}

// GetAll retrieves every pipeline cursor.
func (r *CursorRepo) GetAll(ctx context.Context) ([]*domain.Cursor, error) {
	var cursors []*domain.Cursor
	err := r.db.SelectContext(ctx, &cursors, `
		SELECT pipeline, sequence_number, updated_at
		FROM cursors
		ORDER BY pipeline
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	return cursors, nil
}
