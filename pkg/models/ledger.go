package models

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one human approve/reject action against a decision.
// Entries are append-only: once written they are never edited or deleted.
// The current status of a decision is the status of its most recent entry.
type LedgerEntry struct {
	ID         uuid.UUID    `json:"id"`
	Seq        int64        `json:"seq"` // storage-assigned append order
	DecisionID uuid.UUID    `json:"decision_id"`
	DatasetID  string       `json:"dataset_id"`
	Status     LedgerStatus `json:"status"`
	ActedBy    string       `json:"acted_by"`
	ActedAt    time.Time    `json:"acted_at"`
	Notes      string       `json:"notes,omitempty"`
}
