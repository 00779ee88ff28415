package models

import "github.com/google/uuid"

// GapDirection describes which side of the plan the actual landed on.
type GapDirection string

const (
	DirectionUnder    GapDirection = "under"
	DirectionOver     GapDirection = "over"
	DirectionOnTarget GapDirection = "on_target"
)

// GapSeverity grades how far off plan a gap is.
type GapSeverity string

const (
	SeverityCritical GapSeverity = "critical"
	SeverityWarning  GapSeverity = "warning"
	SeverityNormal   GapSeverity = "normal"
)

var severityRank = map[GapSeverity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityNormal:   2,
}

// Rank returns the sort rank of the severity (critical sorts first).
func (s GapSeverity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Gap is the computed deviation between a plan and an actual fact for the
// same (entity, metric). Read-only after the Gap Analyzer creates it.
type Gap struct {
	ID          uuid.UUID `json:"id"`
	EntityID    uuid.UUID `json:"entity_id"`
	EntityName  string    `json:"entity_name"`
	EntityValue string    `json:"entity_value"`
	MetricName  string    `json:"metric_name"`
	PlanValue   float64   `json:"plan_value"`
	ActualValue float64   `json:"actual_value"`
	AbsoluteGap float64   `json:"absolute_gap"`
	// PercentageGap is nil when PlanValue is zero; severity then falls back
	// to the absolute materiality thresholds.
	PercentageGap   *float64     `json:"percentage_gap"`
	Direction       GapDirection `json:"direction"`
	Severity        GapSeverity  `json:"severity"`
	SourceSheet     string       `json:"source_sheet"`
	SupportingRows  int          `json:"supporting_rows"`
	RelatedEntities []uuid.UUID  `json:"related_entities,omitempty"`
}
