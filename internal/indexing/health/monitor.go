package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/ingester/internal/indexing/indexer"
	"github.com/vietddude/ingester/internal/infra/storage"
)

// StatusSource reports the status of one pipeline.
type StatusSource interface {
	GetStatus() indexer.Status
}

// Check probes an external dependency such as the database.
type Check func(ctx context.Context) error

// Thresholds configures when a pipeline is reported degraded or critical.
type Thresholds struct {
	// StaleAfter marks a pipeline degraded when its last commit is older.
	StaleAfter time.Duration
	// FailedDegraded and FailedCritical bound the unresolved failed checkpoints.
	FailedDegraded int
	FailedCritical int
	// CacheTTL reuses the last report for repeated checks; 0 disables caching.
	CacheTTL time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleAfter:     5 * time.Minute,
		FailedDegraded: 1,
		FailedCritical: 50,
		CacheTTL:       10 * time.Second,
	}
}

// Monitor aggregates health status from the pipelines and their dependencies.
type Monitor struct {
	pipelines  []StatusSource
	failedRepo storage.FailedCheckpointRepository
	checks     map[string]Check
	thresholds Thresholds
	now        func() time.Time

	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. failedRepo may be nil.
func NewMonitor(
	pipelines []StatusSource,
	failedRepo storage.FailedCheckpointRepository,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		pipelines:  pipelines,
		failedRepo: failedRepo,
		checks:     make(map[string]Check),
		thresholds: thresholds,
		now:        time.Now,
	}
}

// AddCheck registers a dependency probe reported under name.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// CheckHealth builds a report for all pipelines and dependencies.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && m.thresholds.CacheTTL > 0 && now.Sub(m.lastCheck) < m.thresholds.CacheTTL {
		return m.lastReport
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Pipelines:    make(map[string]PipelineHealth, len(m.pipelines)),
	}

	for _, src := range m.pipelines {
		h := m.pipelineHealth(ctx, src.GetStatus(), now)
		report.Pipelines[h.Pipeline] = h
		report.SystemStatus = worse(report.SystemStatus, h.Status)
	}

	if len(m.checks) > 0 {
		report.Dependencies = make(map[string]string, len(m.checks))
		for name, check := range m.checks {
			if err := check(ctx); err != nil {
				report.Dependencies[name] = err.Error()
				report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
				continue
			}
			report.Dependencies[name] = "ok"
		}
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

func (m *Monitor) pipelineHealth(ctx context.Context, s indexer.Status, now time.Time) PipelineHealth {
	h := PipelineHealth{
		Pipeline:          s.Pipeline,
		Status:            StatusHealthy,
		Running:           s.Running,
		Finished:          s.Finished,
		NextCheckpoint:    s.NextCheckpoint,
		FailedCheckpoints: s.FailedCheckpoints,
		LastError:         s.LastError,
	}
	if s.HasCommitted {
		committed := s.CommittedCheckpoint
		h.CommittedCheckpoint = &committed
		if !s.LastCommitAt.IsZero() {
			h.CommitAgeSeconds = now.Sub(s.LastCommitAt).Seconds()
		}
	}

	if m.failedRepo != nil {
		if n, err := m.failedRepo.Count(ctx, s.Pipeline); err == nil && n > h.FailedCheckpoints {
			h.FailedCheckpoints = n
		}
	}

	switch {
	case s.Finished:
	case !s.Running:
		h.Status = StatusCritical
	case m.thresholds.FailedCritical > 0 && h.FailedCheckpoints >= m.thresholds.FailedCritical:
		h.Status = StatusCritical
	case m.thresholds.FailedDegraded > 0 && h.FailedCheckpoints >= m.thresholds.FailedDegraded:
		h.Status = StatusDegraded
	case m.thresholds.StaleAfter > 0 && s.HasCommitted &&
		now.Sub(s.LastCommitAt) > m.thresholds.StaleAfter:
		h.Status = StatusDegraded
	}

	return h
}
