package domain

import (
	"encoding/json"
	"time"
)

// ProcessedRecord is the durable marker that an EventKey has been fully
// applied. Written exactly once, at the moment the executor reports
// success, and never mutated afterwards.
type ProcessedRecord struct {
	Timestamp int64  `json:"timestamp"`
	EventData string `json:"event_data"`
}

// NewProcessedRecord snapshots the event's semantic fields for audit.
// The snapshot is never used for re-derivation.
func NewProcessedRecord(e *RawEvent) ProcessedRecord {
	snap, _ := json.Marshal(map[string]any{
		"sender":               e.Sender,
		"token":                e.Token,
		"amount":               e.Amount.String(),
		"destination_chain_id": e.DestinationChainID,
		"recipient":            e.Recipient,
		"block_number":         e.BlockNumber,
	})
	return ProcessedRecord{
		Timestamp: time.Now().Unix(),
		EventData: string(snap),
	}
}
