package domain

import "time"

// CheckpointSequenceNumber identifies a checkpoint. Sequence numbers increase by one per
// checkpoint and are the unit of fetch granularity.
type CheckpointSequenceNumber = uint64

// Checkpoint is a decoded checkpoint blob: an ordered batch of finalized transactions.
type Checkpoint struct {
	SequenceNumber CheckpointSequenceNumber
	Digest         string
	TimestampMs    uint64
	Transactions   []Transaction
}

// Transaction is a single executed transaction within a checkpoint.
type Transaction struct {
	Digest string
	// Events is nil when the transaction emitted no event list at all.
	Events        *TransactionEvents
	InputObjects  []ObjectRef
	OutputObjects []ObjectRef
}

// TransactionEvents holds the events emitted by a transaction.
type TransactionEvents struct {
	Data []Event
}

// Event is a Move event emitted during execution.
type Event struct {
	PackageID string
	Module    string
	Sender    string
	Type      string
	Contents  []byte
}

// ObjectRef references a specific version of an object.
type ObjectRef struct {
	ObjectID string
	Version  uint64
	Digest   string
}

// CheckpointStats summarizes the contents of a checkpoint.
type CheckpointStats struct {
	Transactions  uint64
	Events        uint64
	InputObjects  uint64
	OutputObjects uint64
}

// Stats counts transactions, events and object references in the checkpoint.
func (c *Checkpoint) Stats() CheckpointStats {
	s := CheckpointStats{Transactions: uint64(len(c.Transactions))}
	for _, tx := range c.Transactions {
		if tx.Events != nil {
			s.Events += uint64(len(tx.Events.Data))
		}
		s.InputObjects += uint64(len(tx.InputObjects))
		s.OutputObjects += uint64(len(tx.OutputObjects))
	}
	return s
}

// CheckpointSummary is the persisted record of an ingested checkpoint.
type CheckpointSummary struct {
	SequenceNumber CheckpointSequenceNumber `db:"sequence_number" json:"sequence_number"`
	Digest         string                   `db:"digest"          json:"digest"`
	TimestampMs    uint64                   `db:"timestamp_ms"    json:"timestamp_ms"`
	TxCount        uint64                   `db:"tx_count"        json:"tx_count"`
	EventCount     uint64                   `db:"event_count"     json:"event_count"`
	InputCount     uint64                   `db:"input_count"     json:"input_count"`
	OutputCount    uint64                   `db:"output_count"    json:"output_count"`
	IngestedAt     time.Time                `db:"ingested_at"     json:"ingested_at"`
}

// Summarize builds the summary persisted after a successful ingest.
func (c *Checkpoint) Summarize(ingestedAt time.Time) *CheckpointSummary {
	stats := c.Stats()
	return &CheckpointSummary{
		SequenceNumber: c.SequenceNumber,
		Digest:         c.Digest,
		TimestampMs:    c.TimestampMs,
		TxCount:        stats.Transactions,
		EventCount:     stats.Events,
		InputCount:     stats.InputObjects,
		OutputCount:    stats.OutputObjects,
		IngestedAt:     ingestedAt,
	}
}
