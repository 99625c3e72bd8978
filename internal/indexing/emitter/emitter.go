package emitter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vietddude/ingester/internal/core/domain"
)

// Emitter receives every checkpoint a pipeline commits, in sequence order, before the
// pipeline cursor moves past it. A returned error stops the commit and the checkpoint
// is fetched again on the next window.
type Emitter interface {
	// Emit hands over a committed checkpoint
	Emit(ctx context.Context, pipeline string, cp *domain.Checkpoint) error

	// Close releases emitter resources
	Close() error
}

// Nop discards checkpoints.
type Nop struct{}

func (Nop) Emit(context.Context, string, *domain.Checkpoint) error { return nil }
func (Nop) Close() error                                           { return nil }

// LogEmitter logs a one-line summary of each checkpoint.
type LogEmitter struct {
	log   *slog.Logger
	level slog.Level
}

func NewLogEmitter(log *slog.Logger, level slog.Level) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log, level: level}
}

func (e *LogEmitter) Emit(ctx context.Context, pipeline string, cp *domain.Checkpoint) error {
	stats := cp.Stats()
	e.log.Log(ctx, e.level, "Checkpoint committed",
		"pipeline", pipeline,
		"checkpoint", cp.SequenceNumber,
		"digest", cp.Digest,
		"transactions", stats.Transactions,
		"events", stats.Events,
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }

// Multi fans a checkpoint out to several emitters in order and stops at the first error.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, pipeline string, cp *domain.Checkpoint) error {
	for _, e := range m {
		if err := e.Emit(ctx, pipeline, cp); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
