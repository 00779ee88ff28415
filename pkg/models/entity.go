package models

import "github.com/google/uuid"

// Entity is a canonical real-world dimension detected across one or more
// sheets (a repeated identifier space). Entities are created once per
// analysis run and are immutable afterward.
type Entity struct {
	ID            uuid.UUID `json:"id"`
	CanonicalName string    `json:"canonical_name"`
	Cardinality   int       `json:"cardinality"`
	SourceSheets  []string  `json:"source_sheets"`
	SourceColumns []string  `json:"source_columns"`
	IsPrimary     bool      `json:"is_primary"`
	SampleValues  []string  `json:"sample_values,omitempty"`
}

// EntityMember records that a specific (sheet, column) participates in an
// entity. The detector publishes the full member list so downstream stages
// can resolve a row's entity value without re-deriving column groupings.
type EntityMember struct {
	EntityID    uuid.UUID `json:"entity_id"`
	SheetID     string    `json:"sheet_id"`
	ColumnName  string    `json:"column_name"`
	ColumnIndex int       `json:"column_index"`
}
