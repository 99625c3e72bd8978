package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/infra/storage"
)

// MemoryStorage keeps all records in process memory. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryStorage struct {
	checkpoints map[domain.CheckpointSequenceNumber]domain.CheckpointSummary
	cursors     map[string]domain.Cursor
	failed      map[string]map[string]domain.FailedCheckpoint
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[domain.CheckpointSequenceNumber]domain.CheckpointSummary),
		cursors:     make(map[string]domain.Cursor),
		failed:      make(map[string]map[string]domain.FailedCheckpoint),
	}
}

var (
	_ storage.CheckpointRepository       = (*CheckpointRepo)(nil)
	_ storage.CursorRepository           = (*CursorRepo)(nil)
	_ storage.FailedCheckpointRepository = (*FailedRepo)(nil)
)

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Save(ctx context.Context, summary *domain.CheckpointSummary) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.checkpoints[summary.SequenceNumber] = *summary
	return nil
}

func (r *CheckpointRepo) GetBySequence(
	ctx context.Context,
	seq domain.CheckpointSequenceNumber,
) (*domain.CheckpointSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.checkpoints[seq]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *CheckpointRepo) GetLatest(ctx context.Context) (*domain.CheckpointSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.CheckpointSummary
	for seq := range r.store.checkpoints {
		if latest == nil || seq > latest.SequenceNumber {
			s := r.store.checkpoints[seq]
			latest = &s
		}
	}
	return latest, nil
}

func (r *CheckpointRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for seq, s := range r.store.checkpoints {
		if s.IngestedAt.Before(cutoff) {
			delete(r.store.checkpoints, seq)
			deleted++
		}
	}
	return deleted, nil
}

func (r *CheckpointRepo) DeleteBySequence(
	ctx context.Context,
	seqs []domain.CheckpointSequenceNumber,
) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for _, seq := range seqs {
		if _, ok := r.store.checkpoints[seq]; ok {
			delete(r.store.checkpoints, seq)
			deleted++
		}
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, pipeline string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cursors[pipeline]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *CursorRepo) GetAll(ctx context.Context) ([]*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cursors := make([]*domain.Cursor, 0, len(r.store.cursors))
	for _, c := range r.store.cursors {
		c := c
		cursors = append(cursors, &c)
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].Pipeline < cursors[j].Pipeline })
	return cursors, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *cursor
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	r.store.cursors[cursor.Pipeline] = c
	return nil
}

// -----------------------------------------------------------------------------
// Failed Checkpoint Repository
// -----------------------------------------------------------------------------

type FailedRepo struct {
	store *MemoryStorage
}

func NewFailedRepo(store *MemoryStorage) *FailedRepo {
	return &FailedRepo{store: store}
}

func (r *FailedRepo) Add(ctx context.Context, fc *domain.FailedCheckpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	byID, ok := r.store.failed[fc.Pipeline]
	if !ok {
		byID = make(map[string]domain.FailedCheckpoint)
		r.store.failed[fc.Pipeline] = byID
	}
	byID[fc.ID] = *fc
	return nil
}

func (r *FailedRepo) GetAll(ctx context.Context, pipeline string) ([]*domain.FailedCheckpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	byID := r.store.failed[pipeline]
	out := make([]*domain.FailedCheckpoint, 0, len(byID))
	for _, fc := range byID {
		fc := fc
		out = append(out, &fc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SequenceNumber != out[j].SequenceNumber {
			return out[i].SequenceNumber < out[j].SequenceNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *FailedRepo) Count(ctx context.Context, pipeline string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failed[pipeline]), nil
}

func (r *FailedRepo) MarkResolved(ctx context.Context, pipeline string, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.failed[pipeline], id)
	return nil
}
