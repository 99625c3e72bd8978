package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/ingester/internal/infra/storage"
)

// Pruner deletes checkpoint summaries based on retention policy.
type Pruner struct {
	retention time.Duration
	repo      storage.CheckpointRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A zero retention disables pruning.
func NewPruner(retention time.Duration, repo storage.CheckpointRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       log,
		now:       time.Now,
	}
}

// Interval returns how often the pruner runs.
func (p *Pruner) Interval() time.Duration {
	// 10% of the retention period, between 1 minute and 1 hour
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes summaries older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)

	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune checkpoints", "cutoff", cutoff, "error", err)
		return 0
	}
	if deleted > 0 {
		p.log.Info("Pruned checkpoints", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted
}
