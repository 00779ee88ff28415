package models

import "github.com/google/uuid"

// ThemeType says what dimension a theme clusters on.
type ThemeType string

const (
	ThemeEntity  ThemeType = "entity"
	ThemePattern ThemeType = "pattern" // dataset-wide decisions with no root entity
)

// DecisionTheme is a derived clustering of decisions sharing a root entity.
// Themes are recomputed on every run and never persisted independently of
// the decisions they group.
type DecisionTheme struct {
	ID                     uuid.UUID   `json:"id"`
	Type                   ThemeType   `json:"theme_type"`
	Headline               string      `json:"headline"`
	Summary                string      `json:"summary"`
	DecisionCount          int         `json:"decision_count"`
	MaxUrgency             float64     `json:"max_urgency"`
	DecisionIDs            []uuid.UUID `json:"decision_ids"`
	RepresentativeDecision uuid.UUID   `json:"representative_decision"`
}
