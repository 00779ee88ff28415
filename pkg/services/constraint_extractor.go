package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// ConstraintExtractor scans free-text columns for limiting statements and
// attaches each one to the nearest identifiable entity in the same row.
type ConstraintExtractor interface {
	// Extract returns one Constraint per matched span. A cell that matches
	// several patterns, or the same pattern more than once, yields several
	// constraints. Numeric columns are never scanned.
	Extract(datasetID string, tables []models.Table, profiles []models.SheetProfile, graph *RelationshipGraph) []models.Constraint
}

type constraintExtractor struct {
	cfg    config.AnalysisConfig
	logger *zap.Logger
}

// NewConstraintExtractor creates a new ConstraintExtractor.
func NewConstraintExtractor(cfg config.AnalysisConfig, logger *zap.Logger) ConstraintExtractor {
	return &constraintExtractor{
		cfg:    cfg,
		logger: logger.Named("constraint-extractor"),
	}
}

var _ ConstraintExtractor = (*constraintExtractor)(nil)

var constraintIDNamespace = uuid.MustParse("f3a9d2b7-4c1e-48f0-b6a5-8d2e7c4f1a90")

// textRule is one pattern rule for a constraint type. Rules are evaluated
// in a fixed order so output ordering never depends on map iteration.
type textRule struct {
	ctype   models.ConstraintType
	pattern *regexp.Regexp
	label   string
}

var textRules = []textRule{
	{
		ctype:   models.ConstraintBlocking,
		pattern: regexp.MustCompile(`(?i)\b(blocked|blocking|cannot|can't|unable to|stuck|halted|stopped|on hold|waiting (?:on|for))\b`),
		label:   "blocking condition",
	},
	{
		ctype:   models.ConstraintDeadline,
		pattern: regexp.MustCompile(`(?i)\b(due|deadline|by|until|no later than)\b[^.]*?(\d{4}[-/]\d{1,2}[-/]\d{1,2}|\d{1,2}[-/]\d{1,2}|q[1-4]|eo[dwm]|end of (?:day|week|month|quarter|year))`),
		label:   "date-bound requirement",
	},
	{
		ctype:   models.ConstraintDependency,
		pattern: regexp.MustCompile(`(?i)\b(depends on|requires|needs approval|prerequisite|only after|once\b.+\b(?:done|complete|approved)|waiting until)\b`),
		label:   "precedence requirement",
	},
	{
		ctype:   models.ConstraintCapacity,
		pattern: regexp.MustCompile(`(?i)\b(max(?:imum)?|limit(?:ed)?(?: to)?|capacity|up to|at most|cap(?:ped)? at)\b[^.]*?\d+`),
		label:   "hard limit",
	},
	{
		ctype:   models.ConstraintResource,
		pattern: regexp.MustCompile(`(?i)\b(short(?:age)?(?: of)?|missing|lacking|insufficient|not enough|understaffed|need(?:s|ed)? more)\b`),
		label:   "resource shortfall",
	},
	{
		ctype:   models.ConstraintInProgress,
		pattern: regexp.MustCompile(`(?i)\b(in progress|ongoing|underway|wip|still working)\b|(?:\.\.\.|…)\s*$`),
		label:   "work in progress",
	},
}

// exceptionShareLimit marks category values rarer than this fraction of
// rows as exceptions worth surfacing.
const exceptionShareLimit = 0.05

func (e *constraintExtractor) Extract(datasetID string, tables []models.Table, profiles []models.SheetProfile, graph *RelationshipGraph) []models.Constraint {
	byID := make(map[string]*models.SheetProfile, len(profiles))
	for i := range profiles {
		byID[profiles[i].SheetID] = &profiles[i]
	}

	var constraints []models.Constraint
	for i := range tables {
		t := &tables[i]
		profile, ok := byID[t.SheetID]
		if !ok || profile.Role == models.RoleUnknown {
			continue
		}
		members := graph.MembersInSheet(t.SheetID)

		for _, cp := range profile.Columns {
			col := t.ColumnByName(cp.Name)
			if col == nil {
				continue
			}
			switch {
			case cp.Shape == models.ShapeFreeText || cp.Shape == models.ShapeName:
				constraints = append(constraints, e.scanTextColumn(datasetID, t, col, members)...)
			case cp.Shape == models.ShapeCategory || cp.Shape == models.ShapeStatus:
				constraints = append(constraints, e.scanRareCategories(datasetID, t, col, &cp, members)...)
			}
		}
	}

	e.logger.Debug("Extracted constraints",
		zap.String("dataset_id", datasetID),
		zap.Int("constraints", len(constraints)))
	return constraints
}

func (e *constraintExtractor) scanTextColumn(datasetID string, t *models.Table, col *models.Column, members []models.EntityMember) []models.Constraint {
	var out []models.Constraint
	for row := 0; row < t.RowCount(); row++ {
		cell := col.Cell(row)
		if cell.Null || cell.Kind != models.CellString {
			continue
		}
		text := cell.Str
		for _, rule := range textRules {
			// One constraint per matched span: a cell can state two
			// separate limits and each must survive as its own record.
			for span, match := range rule.pattern.FindAllString(text, -1) {
				out = append(out, e.newConstraint(datasetID, t, col.Name, row, span, rule.ctype,
					fmt.Sprintf("%s: %s", rule.label, strings.TrimSpace(match)), text, members))
			}
		}
	}
	return out
}

// scanRareCategories flags category values that appear in under 5% of
// rows. An outlier status in an otherwise regular column is usually a
// condition somebody typed in by hand.
func (e *constraintExtractor) scanRareCategories(datasetID string, t *models.Table, col *models.Column, cp *models.ColumnProfile, members []models.EntityMember) []models.Constraint {
	if cp.NonNullCount < 20 {
		return nil
	}
	counts := make(map[string]int)
	firstRow := make(map[string]int)
	for row := 0; row < t.RowCount(); row++ {
		cell := col.Cell(row)
		if cell.Null || cell.Kind != models.CellString {
			continue
		}
		v := cell.Str
		if _, seen := counts[v]; !seen {
			firstRow[v] = row
		}
		counts[v]++
	}

	rare := make([]string, 0)
	for v, n := range counts {
		if float64(n)/float64(cp.NonNullCount) < exceptionShareLimit {
			rare = append(rare, v)
		}
	}
	sort.Strings(rare)

	var out []models.Constraint
	for _, v := range rare {
		out = append(out, e.newConstraint(datasetID, t, col.Name, firstRow[v], 0, models.ConstraintException,
			fmt.Sprintf("rare category value: %q (%d of %d rows)", v, counts[v], cp.NonNullCount), v, members))
	}
	return out
}

func (e *constraintExtractor) newConstraint(datasetID string, t *models.Table, column string, row, span int, ctype models.ConstraintType, description, sourceText string, members []models.EntityMember) models.Constraint {
	c := models.Constraint{
		ID: uuid.NewSHA1(constraintIDNamespace, []byte(fmt.Sprintf("%s|%s|%s|%d|%d|%s",
			datasetID, t.SheetID, column, row, span, ctype))),
		Type:         ctype,
		Description:  description,
		SourceText:   sourceText,
		SourceSheet:  t.SheetID,
		SourceColumn: column,
		RowIndex:     row,
	}

	// The leftmost entity column in the sheet identifies the row's subject.
	for _, m := range members {
		if m.ColumnName == column {
			continue
		}
		col := t.ColumnByName(m.ColumnName)
		if col == nil {
			continue
		}
		cell := col.Cell(row)
		if cell.Null {
			continue
		}
		id := m.EntityID
		c.EntityID = &id
		c.EntityValue = strings.ToLower(cellKey(cell))
		break
	}
	return c
}
