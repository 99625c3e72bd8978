// Package metrics defines the Prometheus instruments exported by the ingester.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/ingestion"
)

const namespace = "ingester"

// IngestionMetrics holds every instrument updated by the ingestion client and the pipelines
// that drive it. All instruments are safe for concurrent use.
type IngestionMetrics struct {
	Registry *prometheus.Registry

	TotalIngestedCheckpoints      prometheus.Counter
	TotalIngestedBytes            prometheus.Counter
	TotalIngestedTransactions     prometheus.Counter
	TotalIngestedEvents           prometheus.Counter
	TotalIngestedInputs           prometheus.Counter
	TotalIngestedOutputs          prometheus.Counter
	TotalIngestedTransientRetries prometheus.Counter
	IngestedCheckpointLatency     prometheus.Histogram

	LatestIngestedCheckpoint prometheus.Gauge
	CommittedCheckpoint      *prometheus.GaugeVec
	FailedCheckpoints        *prometheus.CounterVec
	DBConnectionPoolUsage    prometheus.Gauge

	latestMu sync.Mutex
	latest   domain.CheckpointSequenceNumber
}

var _ ingestion.MetricsSink = (*IngestionMetrics)(nil)

// New registers the ingestion instruments with reg.
func New(reg *prometheus.Registry) *IngestionMetrics {
	f := promauto.With(reg)

	return &IngestionMetrics{
		Registry: reg,
		TotalIngestedCheckpoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_checkpoints",
			Help:      "Total number of checkpoints fetched from the remote store",
		}),
		TotalIngestedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_bytes",
			Help:      "Total number of bytes fetched from the remote store",
		}),
		TotalIngestedTransactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_transactions",
			Help:      "Total number of transactions in checkpoints fetched from the remote store",
		}),
		TotalIngestedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_events",
			Help:      "Total number of events in checkpoints fetched from the remote store",
		}),
		TotalIngestedInputs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_inputs",
			Help:      "Total number of input objects in checkpoints fetched from the remote store",
		}),
		TotalIngestedOutputs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_outputs",
			Help:      "Total number of output objects in checkpoints fetched from the remote store",
		}),
		TotalIngestedTransientRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_ingested_transient_retries",
			Help:      "Total number of retries due to transient errors while fetching checkpoints",
		}),
		IngestedCheckpointLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingested_checkpoint_latency_seconds",
			Help:      "Time taken to fetch a checkpoint from the remote store, including retries",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		LatestIngestedCheckpoint: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_ingested_checkpoint",
			Help:      "Highest checkpoint sequence number fetched from the remote store",
		}),
		CommittedCheckpoint: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "committed_checkpoint",
			Help:      "Last checkpoint committed by each pipeline",
		}, []string{"pipeline"}),
		FailedCheckpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_checkpoints_total",
			Help:      "Total number of checkpoints that failed with a terminal error",
		}, []string{"pipeline", "kind"}),
		DBConnectionPoolUsage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool_usage_percent",
			Help:      "Open database connections as a percentage of the pool limit",
		}),
	}
}

// NewForTesting returns metrics backed by a fresh registry.
func NewForTesting() *IngestionMetrics {
	return New(prometheus.NewRegistry())
}

// IncTransientRetries implements ingestion.MetricsSink.
func (m *IngestionMetrics) IncTransientRetries() {
	m.TotalIngestedTransientRetries.Inc()
}

// ObserveIngested implements ingestion.MetricsSink.
func (m *IngestionMetrics) ObserveIngested(s ingestion.IngestStats) {
	m.TotalIngestedCheckpoints.Inc()
	m.TotalIngestedBytes.Add(float64(s.Bytes))
	m.TotalIngestedTransactions.Add(float64(s.Transactions))
	m.TotalIngestedEvents.Add(float64(s.Events))
	m.TotalIngestedInputs.Add(float64(s.InputObjects))
	m.TotalIngestedOutputs.Add(float64(s.OutputObjects))
	m.IngestedCheckpointLatency.Observe(s.Latency.Seconds())
}

// RecordCommitted updates the per-pipeline progress gauges.
func (m *IngestionMetrics) RecordCommitted(pipeline string, seq domain.CheckpointSequenceNumber) {
	m.CommittedCheckpoint.WithLabelValues(pipeline).Set(float64(seq))
	m.setLatest(seq)
}

// RecordFailure counts a terminal ingestion failure.
func (m *IngestionMetrics) RecordFailure(pipeline string, kind domain.FailureKind) {
	m.FailedCheckpoints.WithLabelValues(pipeline, string(kind)).Inc()
}

// setLatest only moves the gauge forward; pipelines commit concurrently.
func (m *IngestionMetrics) setLatest(seq domain.CheckpointSequenceNumber) {
	m.latestMu.Lock()
	defer m.latestMu.Unlock()
	if seq > m.latest {
		m.latest = seq
		m.LatestIngestedCheckpoint.Set(float64(seq))
	}
}
