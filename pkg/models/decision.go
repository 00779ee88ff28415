package models

import "github.com/google/uuid"

// DecisionType is the closed set of recommendation kinds the generator
// produces. Dispatch on these is table-driven, not type-hierarchical.
type DecisionType string

const (
	DecisionInvestigate         DecisionType = "investigate"
	DecisionInvestigateSystemic DecisionType = "investigate_systemic"
	DecisionMonitor             DecisionType = "monitor"
	DecisionEscalate            DecisionType = "escalate"
	DecisionResolve             DecisionType = "resolve"
	DecisionPrioritize          DecisionType = "prioritize"
	DecisionAllocate            DecisionType = "allocate"
	DecisionSequence            DecisionType = "sequence"
	DecisionVerifyTargets       DecisionType = "verify_targets"
)

// LedgerStatus is the derived disposition of a decision: the status of its
// most recent ledger entry, or pending when none exists.
type LedgerStatus string

const (
	StatusPending  LedgerStatus = "pending"
	StatusApproved LedgerStatus = "approved"
	StatusRejected LedgerStatus = "rejected"
)

// Evidence references the specific gaps and constraints that produced a
// decision, for provenance and drill-down.
type Evidence struct {
	GapIDs        []uuid.UUID `json:"gap_ids,omitempty"`
	ConstraintIDs []uuid.UUID `json:"constraint_ids,omitempty"`
}

// Decision is a scored, evidence-backed recommendation. Content is immutable
// once generated; LedgerStatus is derived at read time from the ledger.
type Decision struct {
	ID              uuid.UUID    `json:"id"`
	Type            DecisionType `json:"decision_type"`
	Summary         string       `json:"summary"`
	Reasoning       string       `json:"reasoning"`
	EntityID        *uuid.UUID   `json:"entity_id,omitempty"` // root entity, nil for dataset-wide patterns
	ImpactScore     float64      `json:"impact_score"`
	ConfidenceScore float64      `json:"confidence_score"`
	UrgencyScore    float64      `json:"urgency_score"`
	GapCount        int          `json:"supporting_gap_count"`
	ConstraintCount int          `json:"supporting_constraint_count"`
	Evidence        Evidence     `json:"evidence"`
	LedgerStatus    LedgerStatus `json:"ledger_status"`
}
