package models

import "github.com/google/uuid"

// FactRole tags a fact as a target or a realized value.
type FactRole string

const (
	FactPlan   FactRole = "plan"
	FactActual FactRole = "actual"
)

// Fact is a single observed (entity, metric, value) tuple extracted from a
// sheet classified as plan, actual, transactional or comparison. Facts are
// immutable and owned by the analysis run.
type Fact struct {
	EntityID    uuid.UUID `json:"entity_id"`
	EntityValue string    `json:"entity_value"` // raw key value the row carried
	MetricName  string    `json:"metric_name"`
	Role        FactRole  `json:"role"`
	Value       float64   `json:"value"`
	SheetID     string    `json:"sheet_id"`
	RowIndex    int       `json:"row_index"`
}
