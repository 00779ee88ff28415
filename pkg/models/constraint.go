package models

import "github.com/google/uuid"

// ConstraintType is the closed set of limitation categories the extractor
// recognizes in free text.
type ConstraintType string

const (
	ConstraintBlocking   ConstraintType = "blocking"
	ConstraintDeadline   ConstraintType = "deadline"
	ConstraintDependency ConstraintType = "dependency"
	ConstraintCapacity   ConstraintType = "capacity"
	ConstraintResource   ConstraintType = "resource"
	ConstraintException  ConstraintType = "exception"
	ConstraintInProgress ConstraintType = "in_progress"
)

// ValidConstraintTypes lists every recognized constraint type.
var ValidConstraintTypes = []ConstraintType{
	ConstraintBlocking,
	ConstraintDeadline,
	ConstraintDependency,
	ConstraintCapacity,
	ConstraintResource,
	ConstraintException,
	ConstraintInProgress,
}

// IsValidConstraintType checks membership in the closed enumeration.
func IsValidConstraintType(t ConstraintType) bool {
	for _, v := range ValidConstraintTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Constraint is a textually-extracted limitation attached to the nearest
// identifiable entity in the same row, or entity-less when none is found.
// One constraint per matched span; a cell can yield several.
type Constraint struct {
	ID           uuid.UUID      `json:"id"`
	EntityID     *uuid.UUID     `json:"entity_id,omitempty"`
	EntityValue  string         `json:"entity_value,omitempty"`
	Type         ConstraintType `json:"constraint_type"`
	Description  string         `json:"description"`
	SourceText   string         `json:"source_text"`
	SourceSheet  string         `json:"source_sheet"`
	SourceColumn string         `json:"source_column"`
	RowIndex     int            `json:"row_index"`
}
