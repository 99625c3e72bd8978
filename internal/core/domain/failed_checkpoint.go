package domain

import "time"

// FailedCheckpoint records a checkpoint that could not be ingested.
type FailedCheckpoint struct {
	ID             string                   `db:"id"              json:"id"`
	Pipeline       string                   `db:"pipeline"        json:"pipeline"`
	SequenceNumber CheckpointSequenceNumber `db:"sequence_number" json:"sequence_number"`
	Kind           FailureKind              `db:"kind"            json:"kind"`
	Error          string                   `db:"error_msg"       json:"error_msg"`
	Attempts       int                      `db:"attempts"        json:"attempts"`
	CreatedAt      time.Time                `db:"created_at"      json:"created_at"`
	LastAttempt    time.Time                `db:"last_attempt"    json:"last_attempt"`
}

type FailureKind string

const (
	FailureKindHTTP            FailureKind = "http"
	FailureKindDeserialization FailureKind = "deserialization"
	FailureKindStorage         FailureKind = "storage"
	FailureKindUnknown         FailureKind = "unknown"
)
