package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox kinds
const (
	OutboxAwardPoints = "award_points"
)

// Outbox statuses
const (
	OutboxPending  = "pending"
	OutboxInFlight = "in_flight"
	OutboxDone     = "done"
	OutboxFailed   = "failed"
	OutboxDead     = "dead"
)

// OutboxEntry is a durable intent to perform an on-chain side effect that was
// derived from a persisted chain event.
type OutboxEntry struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Kind         string          `json:"kind" db:"kind"`
	SourceTxHash string          `json:"sourceTxHash" db:"source_tx_hash"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	Status       string          `json:"status" db:"status"`
	Attempts     int             `json:"attempts" db:"attempts"`
	LastError    *string         `json:"lastError,omitempty" db:"last_error"`
	ResultTxHash *string         `json:"resultTxHash,omitempty" db:"result_tx_hash"`
	// SubmittedTxHash is the last transaction signed for this entry, set
	// before broadcast. A replay checks it before sending again.
	SubmittedTxHash *string   `json:"submittedTxHash,omitempty" db:"submitted_tx_hash"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

type AwardPointsPayload struct {
	Fan    string `json:"fan"`
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

// NewAwardPointsEntry builds a pending award intent keyed by the source tip.
func NewAwardPointsEntry(sourceTxHash string, p AwardPointsPayload) (*OutboxEntry, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &OutboxEntry{
		ID:           uuid.New(),
		Kind:         OutboxAwardPoints,
		SourceTxHash: sourceTxHash,
		Payload:      payload,
		Status:       OutboxPending,
	}, nil
}
