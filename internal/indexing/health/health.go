// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PipelineHealth contains health details for one ingestion pipeline.
type PipelineHealth struct {
	Pipeline            string       `json:"pipeline"`
	Status              SystemStatus `json:"status"`
	Running             bool         `json:"running"`
	Finished            bool         `json:"finished"`
	NextCheckpoint      uint64       `json:"next_checkpoint"`
	CommittedCheckpoint *uint64      `json:"committed_checkpoint,omitempty"`
	CommitAgeSeconds    float64      `json:"commit_age_seconds"`
	FailedCheckpoints   int          `json:"failed_checkpoints"`
	LastError           string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus              `json:"system_status"`
	Pipelines    map[string]PipelineHealth `json:"pipelines"`
	Dependencies map[string]string         `json:"dependencies,omitempty"`
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
