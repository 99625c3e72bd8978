package indexer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/ingestion"
)

// errStorage marks failures to persist a fetched checkpoint.
var errStorage = errors.New("storage")

// Pipeline implements the Indexer interface
type Pipeline struct {
	cfg      Config
	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	status Status
	// failed tracks unresolved failure records by sequence number so repeated
	// failures update one record and a later commit resolves it.
	failed map[domain.CheckpointSequenceNumber]*domain.FailedCheckpoint
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:    cfg,
		stop:   make(chan struct{}),
		status: Status{Pipeline: cfg.Name},
		failed: make(map[domain.CheckpointSequenceNumber]*domain.FailedCheckpoint),
	}
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.cfg.Name
}

// Start runs the ingestion loop
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline %s already running", p.cfg.Name)
	}
	defer p.running.Store(false)

	log := p.cfg.Logger.With("pipeline", p.cfg.Name)

	next, done, err := p.resume(ctx)
	if err != nil {
		return err
	}
	p.setNext(next)
	log.Info("Pipeline started", "checkpoint", next, "end", p.cfg.EndCheckpoint)

	// Fetches stop on Stop as well as on ctx; commits only stop on ctx.
	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()
	go func() {
		select {
		case <-p.stop:
			cancelFetch()
		case <-fetchCtx.Done():
		}
	}()

	for !done {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		default:
		}

		if p.cfg.EndCheckpoint > 0 && next > p.cfg.EndCheckpoint {
			break
		}

		var committed uint64
		var fail *failure
		committed, done, fail = p.processWindow(ctx, fetchCtx, next)
		next += committed
		p.setNext(next)

		if fail == nil {
			continue
		}
		if fetchCtx.Err() != nil {
			return nil
		}

		p.handleFailure(ctx, fail)

		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
	}

	p.mu.Lock()
	p.status.Finished = true
	p.mu.Unlock()
	log.Info("Pipeline reached end checkpoint", "checkpoint", p.cfg.EndCheckpoint)
	return nil
}

// Stop stops the pipeline
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.Running = p.running.Load()
	s.FailedCheckpoints = len(p.failed)
	return s
}

// resume returns the first checkpoint to ingest.
func (p *Pipeline) resume(ctx context.Context) (domain.CheckpointSequenceNumber, bool, error) {
	cursor, err := p.cfg.CursorRepo.Get(ctx, p.cfg.Name)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	if cursor == nil {
		return p.cfg.StartCheckpoint, false, nil
	}

	p.mu.Lock()
	p.status.CommittedCheckpoint = cursor.SequenceNumber
	p.status.HasCommitted = true
	p.status.LastCommitAt = cursor.UpdatedAt
	p.mu.Unlock()

	if cursor.SequenceNumber == math.MaxUint64 {
		return cursor.SequenceNumber, true, nil
	}
	return cursor.SequenceNumber + 1, false, nil
}

type failure struct {
	seq domain.CheckpointSequenceNumber
	err error
}

type fetchResult struct {
	cp  *domain.Checkpoint
	err error
}

// windowSize returns how many checkpoints starting at next fit in one window.
func (p *Pipeline) windowSize(next domain.CheckpointSequenceNumber) uint64 {
	last := domain.CheckpointSequenceNumber(math.MaxUint64)
	if p.cfg.EndCheckpoint > 0 {
		last = p.cfg.EndCheckpoint
	}

	size := uint64(p.cfg.Concurrency)
	if last-next < size-1 {
		size = last - next + 1
	}
	return size
}

// processWindow fetches checkpoints [next, next+size) in parallel and commits the
// contiguous successful prefix in order. It returns the number committed, whether the
// last possible checkpoint was committed, and the first failure.
func (p *Pipeline) processWindow(
	ctx, fetchCtx context.Context,
	next domain.CheckpointSequenceNumber,
) (uint64, bool, *failure) {
	size := p.windowSize(next)
	results := make([]fetchResult, size)

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i := uint64(0); i < size; i++ {
		g.Go(func() error {
			attemptCtx := fetchCtx
			if p.cfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(fetchCtx, p.cfg.FetchTimeout)
				defer cancel()
			}
			cp, err := p.cfg.Fetcher.Fetch(attemptCtx, next+i)
			results[i] = fetchResult{cp: cp, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		seq := next + uint64(i)
		if r.err != nil {
			return uint64(i), false, &failure{seq: seq, err: r.err}
		}
		if err := p.commit(ctx, seq, r.cp); err != nil {
			return uint64(i), false, &failure{seq: seq, err: err}
		}
		if seq == math.MaxUint64 {
			return uint64(i) + 1, true, nil
		}
	}
	return size, p.cfg.EndCheckpoint > 0 && next+size-1 == p.cfg.EndCheckpoint, nil
}

// commit hands the checkpoint to the emitter, persists its summary and advances the cursor.
func (p *Pipeline) commit(
	ctx context.Context,
	seq domain.CheckpointSequenceNumber,
	cp *domain.Checkpoint,
) error {
	if err := p.cfg.Emitter.Emit(ctx, p.cfg.Name, cp); err != nil {
		return fmt.Errorf("%w: emit checkpoint %d: %v", errStorage, seq, err)
	}

	now := time.Now()
	if p.cfg.CheckpointRepo != nil {
		if err := p.cfg.CheckpointRepo.Save(ctx, cp.Summarize(now)); err != nil {
			return fmt.Errorf("%w: save checkpoint %d: %v", errStorage, seq, err)
		}
	}

	cursor := &domain.Cursor{Pipeline: p.cfg.Name, SequenceNumber: seq, UpdatedAt: now}
	if err := p.cfg.CursorRepo.Save(ctx, cursor); err != nil {
		return fmt.Errorf("%w: advance cursor to %d: %v", errStorage, seq, err)
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordCommitted(p.cfg.Name, seq)
	}

	p.mu.Lock()
	p.status.CommittedCheckpoint = seq
	p.status.HasCommitted = true
	p.status.LastCommitAt = now
	p.status.LastError = ""
	fc := p.failed[seq]
	delete(p.failed, seq)
	p.mu.Unlock()

	if fc != nil && p.cfg.FailedRepo != nil {
		if err := p.cfg.FailedRepo.MarkResolved(ctx, p.cfg.Name, fc.ID); err != nil {
			p.cfg.Logger.Warn("Failed to resolve failed checkpoint",
				"pipeline", p.cfg.Name, "checkpoint", seq, "error", err)
		}
	}
	return nil
}

// handleFailure logs the failure and, unless the checkpoint is simply not published
// yet, records it in the failed checkpoint queue.
func (p *Pipeline) handleFailure(ctx context.Context, f *failure) {
	log := p.cfg.Logger.With("pipeline", p.cfg.Name, "checkpoint", f.seq)

	if ingestion.IsNotFound(f.err) {
		log.Debug("Checkpoint not available yet")
		return
	}

	kind := failureKind(f.err)
	if kind == domain.FailureKindUnknown && errors.Is(f.err, context.DeadlineExceeded) {
		log.Warn("Checkpoint fetch timed out", "timeout", p.cfg.FetchTimeout)
	} else {
		log.Error("Failed to ingest checkpoint", "kind", kind, "error", f.err)
	}

	now := time.Now()
	p.mu.Lock()
	p.status.LastError = f.err.Error()
	fc, ok := p.failed[f.seq]
	if !ok {
		fc = &domain.FailedCheckpoint{
			ID:             uuid.NewString(),
			Pipeline:       p.cfg.Name,
			SequenceNumber: f.seq,
			CreatedAt:      now,
		}
		p.failed[f.seq] = fc
	}
	fc.Kind = kind
	fc.Error = f.err.Error()
	fc.Attempts++
	fc.LastAttempt = now
	record := *fc
	p.mu.Unlock()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordFailure(p.cfg.Name, kind)
	}
	if p.cfg.FailedRepo != nil {
		if err := p.cfg.FailedRepo.Add(ctx, &record); err != nil {
			log.Warn("Failed to record failed checkpoint", "error", err)
		}
	}
}

func failureKind(err error) domain.FailureKind {
	switch {
	case errors.Is(err, ingestion.ErrHTTP):
		return domain.FailureKindHTTP
	case errors.Is(err, ingestion.ErrDeserialization):
		return domain.FailureKindDeserialization
	case errors.Is(err, errStorage):
		return domain.FailureKindStorage
	default:
		return domain.FailureKindUnknown
	}
}

func (p *Pipeline) setNext(next domain.CheckpointSequenceNumber) {
	p.mu.Lock()
	p.status.NextCheckpoint = next
	p.mu.Unlock()
}
