package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// GapAnalyzer extracts plan and actual facts from classified sheets and
// computes the deviation between them per (entity, metric).
type GapAnalyzer interface {
	// ExtractFacts pulls (entity, metric, value) tuples out of every sheet
	// classified as plan or actual. Non-numeric values in metric columns are
	// dropped and reported as warnings, never fatal.
	ExtractFacts(tables []models.Table, profiles []models.SheetProfile, graph *RelationshipGraph) ([]models.Fact, []models.RunWarning)

	// Analyze pairs plan and actual facts and emits one Gap per actual
	// value. A pair missing either side produces no Gap. Output is sorted by
	// severity then |absolute gap| descending.
	Analyze(datasetID string, facts []models.Fact, entities []models.Entity, graph *RelationshipGraph) []models.Gap
}

type gapAnalyzer struct {
	cfg    config.AnalysisConfig
	logger *zap.Logger
}

// NewGapAnalyzer creates a new GapAnalyzer.
func NewGapAnalyzer(cfg config.AnalysisConfig, logger *zap.Logger) GapAnalyzer {
	return &gapAnalyzer{
		cfg:    cfg,
		logger: logger.Named("gap-analyzer"),
	}
}

var _ GapAnalyzer = (*gapAnalyzer)(nil)

var gapIDNamespace = uuid.MustParse("d1b1f4c8-9a3e-4b52-8e17-2f5c90a6e3d4")

func (a *gapAnalyzer) ExtractFacts(tables []models.Table, profiles []models.SheetProfile, graph *RelationshipGraph) ([]models.Fact, []models.RunWarning) {
	byID := make(map[string]*models.SheetProfile, len(profiles))
	for i := range profiles {
		byID[profiles[i].SheetID] = &profiles[i]
	}

	var facts []models.Fact
	var warnings []models.RunWarning
	for i := range tables {
		t := &tables[i]
		profile, ok := byID[t.SheetID]
		if !ok {
			continue
		}
		var role models.FactRole
		switch profile.Role {
		case models.RolePlan:
			role = models.FactPlan
		case models.RoleActual:
			role = models.FactActual
		default:
			continue
		}

		members := graph.MembersInSheet(t.SheetID)
		if len(members) == 0 {
			warnings = append(warnings, models.RunWarning{
				Stage:   "gap_analyzer",
				SheetID: t.SheetID,
				Message: "no entity column found, sheet contributes no facts",
			})
			continue
		}
		// The leftmost entity column anchors each row.
		anchor := members[0]
		entityCol := t.ColumnByName(anchor.ColumnName)
		if entityCol == nil {
			continue
		}

		for _, cp := range profile.Columns {
			if !cp.Shape.IsNumericShape() {
				continue
			}
			col := t.ColumnByName(cp.Name)
			if col == nil || cp.Name == anchor.ColumnName {
				continue
			}
			dropped := 0
			for row := 0; row < t.RowCount(); row++ {
				key := entityCol.Cell(row)
				value := col.Cell(row)
				if key.Null || value.Null {
					continue
				}
				if value.Kind != models.CellNumber {
					dropped++
					continue
				}
				facts = append(facts, models.Fact{
					EntityID:    anchor.EntityID,
					EntityValue: strings.ToLower(cellKey(key)),
					MetricName:  cp.Name,
					Role:        role,
					Value:       value.Num,
					SheetID:     t.SheetID,
					RowIndex:    row,
				})
			}
			if dropped > 0 {
				warnings = append(warnings, models.RunWarning{
					Stage:   "gap_analyzer",
					SheetID: t.SheetID,
					Message: fmt.Sprintf("dropped %d non-numeric values in metric column %q", dropped, cp.Name),
				})
			}
		}
	}
	return facts, warnings
}

// factGroup collects the plan and actual facts for one (entity, value) pair.
type factGroup struct {
	entityID    uuid.UUID
	entityValue string
	plans       map[string][]models.Fact // keyed by lowercased metric name
	actuals     map[string][]models.Fact
}

func (a *gapAnalyzer) Analyze(datasetID string, facts []models.Fact, entities []models.Entity, graph *RelationshipGraph) []models.Gap {
	names := make(map[uuid.UUID]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.CanonicalName
	}

	groups := make(map[string]*factGroup)
	var order []string
	for _, f := range facts {
		key := f.EntityID.String() + "|" + f.EntityValue
		g, ok := groups[key]
		if !ok {
			g = &factGroup{
				entityID:    f.EntityID,
				entityValue: f.EntityValue,
				plans:       make(map[string][]models.Fact),
				actuals:     make(map[string][]models.Fact),
			}
			groups[key] = g
			order = append(order, key)
		}
		metric := strings.ToLower(f.MetricName)
		if f.Role == models.FactPlan {
			g.plans[metric] = append(g.plans[metric], f)
		} else {
			g.actuals[metric] = append(g.actuals[metric], f)
		}
	}
	sort.Strings(order)

	var gaps []models.Gap
	for _, key := range order {
		g := groups[key]
		for _, pair := range matchMetrics(g.plans, g.actuals) {
			plan := g.plans[pair.planMetric][0]
			support := len(g.plans[pair.planMetric]) + len(g.actuals[pair.actualMetric])
			for _, actual := range g.actuals[pair.actualMetric] {
				gaps = append(gaps, a.buildGap(datasetID, g, names, plan, actual, support, graph))
			}
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Severity != gaps[j].Severity {
			return gaps[i].Severity.Rank() < gaps[j].Severity.Rank()
		}
		ai, aj := math.Abs(gaps[i].AbsoluteGap), math.Abs(gaps[j].AbsoluteGap)
		if ai != aj {
			return ai > aj
		}
		return gaps[i].ID.String() < gaps[j].ID.String()
	})

	a.logger.Debug("Computed gaps",
		zap.String("dataset_id", datasetID),
		zap.Int("facts", len(facts)),
		zap.Int("gaps", len(gaps)))
	return gaps
}

type metricPair struct {
	planMetric   string
	actualMetric string
}

// matchMetrics pairs plan metrics with actual metrics. Exact name matches
// win; otherwise headers differing by a single qualifier token are paired,
// so "planned units" and "actual units" line up without a keyword list.
func matchMetrics(plans, actuals map[string][]models.Fact) []metricPair {
	planNames := sortedKeys(plans)
	actualNames := sortedKeys(actuals)

	var pairs []metricPair
	usedActual := make(map[string]bool)

	for _, p := range planNames {
		if _, ok := actuals[p]; ok {
			pairs = append(pairs, metricPair{planMetric: p, actualMetric: p})
			usedActual[p] = true
		}
	}
	for _, p := range planNames {
		if _, exact := actuals[p]; exact {
			continue
		}
		for _, an := range actualNames {
			if usedActual[an] {
				continue
			}
			if namesDifferByOneToken(p, an) {
				pairs = append(pairs, metricPair{planMetric: p, actualMetric: an})
				usedActual[an] = true
				break
			}
		}
	}
	return pairs
}

func sortedKeys(m map[string][]models.Fact) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *gapAnalyzer) buildGap(datasetID string, g *factGroup, names map[uuid.UUID]string, plan, actual models.Fact, support int, graph *RelationshipGraph) models.Gap {
	abs := actual.Value - plan.Value

	var pct *float64
	if plan.Value != 0 {
		v := abs / math.Abs(plan.Value) * 100
		pct = &v
	}

	gap := models.Gap{
		ID: uuid.NewSHA1(gapIDNamespace, []byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d",
			datasetID, g.entityID, g.entityValue, strings.ToLower(actual.MetricName), actual.SheetID, actual.RowIndex))),
		EntityID:        g.entityID,
		EntityName:      names[g.entityID],
		EntityValue:     g.entityValue,
		MetricName:      actual.MetricName,
		PlanValue:       plan.Value,
		ActualValue:     actual.Value,
		AbsoluteGap:     abs,
		PercentageGap:   pct,
		SourceSheet:     actual.SheetID,
		SupportingRows:  support,
		RelatedEntities: graph.RelatedEntities(g.entityID, a.cfg.RelatedEntityLimit),
	}
	gap.Direction = a.direction(abs, pct)
	gap.Severity = a.severity(abs, pct)
	return gap
}

func (a *gapAnalyzer) direction(abs float64, pct *float64) models.GapDirection {
	if pct != nil {
		if math.Abs(*pct) < a.cfg.DirectionTolerancePct {
			return models.DirectionOnTarget
		}
	} else if abs == 0 {
		return models.DirectionOnTarget
	}
	if abs < 0 {
		return models.DirectionUnder
	}
	return models.DirectionOver
}

// severity grades a gap. Without a percentage (plan = 0) only the absolute
// materiality thresholds apply.
func (a *gapAnalyzer) severity(abs float64, pct *float64) models.GapSeverity {
	if math.Abs(abs) >= a.cfg.Materiality {
		return models.SeverityCritical
	}
	if pct == nil {
		if math.Abs(abs) >= a.cfg.Materiality/2 {
			return models.SeverityWarning
		}
		return models.SeverityNormal
	}
	switch {
	case math.Abs(*pct) >= a.cfg.CriticalThresholdPct:
		return models.SeverityCritical
	case math.Abs(*pct) >= a.cfg.WarningThresholdPct:
		return models.SeverityWarning
	default:
		return models.SeverityNormal
	}
}
