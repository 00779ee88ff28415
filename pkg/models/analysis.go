package models

import "time"

// RunWarning records a stage-local anomaly that was absorbed rather than
// raised: an unclassifiable sheet, a dropped non-numeric metric cell.
type RunWarning struct {
	Stage   string `json:"stage"`
	SheetID string `json:"sheet_id,omitempty"`
	Message string `json:"message"`
}

// AnalysisResult is the consistent snapshot one run publishes: either the
// whole result becomes visible, or nothing does. Re-running a dataset
// replaces the snapshot wholesale; nothing is ever merged across runs.
type AnalysisResult struct {
	DatasetID   string          `json:"dataset_id"`
	CompletedAt time.Time       `json:"completed_at"`
	Sheets      []SheetProfile  `json:"sheets"`
	Entities    []Entity        `json:"entities"`
	Gaps        []Gap           `json:"gaps"`
	Constraints []Constraint    `json:"constraints"`
	Decisions   []Decision      `json:"decisions"`
	Themes      []DecisionTheme `json:"themes"`
	Warnings    []RunWarning    `json:"warnings,omitempty"`
}

// RunSummary is the compact projection served by the summary endpoint.
type RunSummary struct {
	DatasetID       string         `json:"dataset_id"`
	CompletedAt     time.Time      `json:"completed_at"`
	SheetCount      int            `json:"sheet_count"`
	EntityCount     int            `json:"entity_count"`
	PrimaryEntity   string         `json:"primary_entity,omitempty"`
	GapCount        int            `json:"gap_count"`
	GapsBySeverity  map[string]int `json:"gaps_by_severity"`
	ConstraintCount int            `json:"constraint_count"`
	DecisionCount   int            `json:"decision_count"`
	ThemeCount      int            `json:"theme_count"`
	WarningCount    int            `json:"warning_count"`
}
