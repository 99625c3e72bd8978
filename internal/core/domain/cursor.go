package domain

import "time"

// Cursor represents the ingestion position of a pipeline: the last checkpoint that was
// fully ingested and committed.
type Cursor struct {
	Pipeline       string                   `db:"pipeline"`
	SequenceNumber CheckpointSequenceNumber `db:"sequence_number"`
	UpdatedAt      time.Time                `db:"updated_at"`
}
