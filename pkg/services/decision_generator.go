package services

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// DecisionGenerator synthesizes gaps and constraints into scored decision
// candidates, clusters them into themes, and ranks them.
type DecisionGenerator interface {
	// Generate produces the run's decision list ranked by urgency, then
	// impact, then id, plus the themes grouping them by root entity.
	Generate(datasetID string, gaps []models.Gap, constraints []models.Constraint, entities []models.Entity, graph *RelationshipGraph) ([]models.Decision, []models.DecisionTheme)
}

type decisionGenerator struct {
	cfg    config.AnalysisConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewDecisionGenerator creates a new DecisionGenerator.
func NewDecisionGenerator(cfg config.AnalysisConfig, logger *zap.Logger) DecisionGenerator {
	return &decisionGenerator{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("decision-generator"),
	}
}

var _ DecisionGenerator = (*decisionGenerator)(nil)

var (
	decisionIDNamespace = uuid.MustParse("b8e4c7a1-5f2d-4d93-a0c6-1e9f8b3d7c25")
	themeIDNamespace    = uuid.MustParse("c5d2e8f3-7a41-4b06-9d8e-2c6f1a4b9e70")
)

// severity base for the urgency score
var urgencyBase = map[models.GapSeverity]float64{
	models.SeverityCritical: 0.8,
	models.SeverityWarning:  0.5,
	models.SeverityNormal:   0.3,
}

func (g *decisionGenerator) Generate(datasetID string, gaps []models.Gap, constraints []models.Constraint, entities []models.Entity, graph *RelationshipGraph) ([]models.Decision, []models.DecisionTheme) {
	names := make(map[uuid.UUID]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.CanonicalName
	}

	maxAbs := 0.0
	for _, gap := range gaps {
		if a := math.Abs(gap.AbsoluteGap); a > maxAbs {
			maxAbs = a
		}
	}

	ctx := &genContext{
		datasetID:   datasetID,
		names:       names,
		maxAbs:      maxAbs,
		gaps:        gaps,
		constraints: constraints,
		graph:       graph,
	}

	var decisions []models.Decision
	decisions = append(decisions, g.gapDriven(ctx)...)
	decisions = append(decisions, g.constraintDriven(ctx)...)
	decisions = append(decisions, g.patternDriven(ctx)...)
	decisions = append(decisions, g.relationshipDriven(ctx)...)

	sort.Slice(decisions, func(i, j int) bool {
		if decisions[i].UrgencyScore != decisions[j].UrgencyScore {
			return decisions[i].UrgencyScore > decisions[j].UrgencyScore
		}
		if decisions[i].ImpactScore != decisions[j].ImpactScore {
			return decisions[i].ImpactScore > decisions[j].ImpactScore
		}
		return decisions[i].ID.String() < decisions[j].ID.String()
	})

	themes := g.buildThemes(datasetID, decisions, names)

	g.logger.Debug("Generated decisions",
		zap.String("dataset_id", datasetID),
		zap.Int("decisions", len(decisions)),
		zap.Int("themes", len(themes)))
	return decisions, themes
}

type genContext struct {
	datasetID   string
	names       map[uuid.UUID]string
	maxAbs      float64
	gaps        []models.Gap
	constraints []models.Constraint
	graph       *RelationshipGraph
}

func (c *genContext) entityName(id uuid.UUID) string {
	if name, ok := c.names[id]; ok && name != "" {
		return name
	}
	return "entity"
}

// constraintsFor returns constraints of one type attached to the given
// entity, matching the row's key value when both sides carry one.
func (c *genContext) constraintsFor(entityID uuid.UUID, entityValue string, ctype models.ConstraintType) []models.Constraint {
	var out []models.Constraint
	for _, con := range c.constraints {
		if con.Type != ctype || con.EntityID == nil || *con.EntityID != entityID {
			continue
		}
		if entityValue != "" && con.EntityValue != "" && con.EntityValue != entityValue {
			continue
		}
		out = append(out, con)
	}
	return out
}

// gapDriven turns critical and warning gaps into decisions. An entity with
// enough critical gaps gets a single systemic decision covering them all
// instead of one decision per gap.
func (g *decisionGenerator) gapDriven(ctx *genContext) []models.Decision {
	criticalByEntity := make(map[uuid.UUID][]models.Gap)
	for _, gap := range ctx.gaps {
		if gap.Severity == models.SeverityCritical {
			criticalByEntity[gap.EntityID] = append(criticalByEntity[gap.EntityID], gap)
		}
	}
	systemic := make(map[uuid.UUID]bool)
	for id, entityGaps := range criticalByEntity {
		if len(entityGaps) >= g.cfg.SystemicGapCount {
			systemic[id] = true
		}
	}

	var out []models.Decision
	entityIDs := make([]uuid.UUID, 0, len(criticalByEntity))
	for id := range criticalByEntity {
		entityIDs = append(entityIDs, id)
	}
	sort.Slice(entityIDs, func(i, j int) bool { return entityIDs[i].String() < entityIDs[j].String() })

	for _, id := range entityIDs {
		if !systemic[id] {
			continue
		}
		out = append(out, g.systemicDecision(ctx, id, criticalByEntity[id]))
	}

	for _, gap := range ctx.gaps {
		switch gap.Severity {
		case models.SeverityCritical:
			if systemic[gap.EntityID] {
				continue
			}
			if blocking := ctx.constraintsFor(gap.EntityID, gap.EntityValue, models.ConstraintBlocking); len(blocking) > 0 {
				out = append(out, g.escalateDecision(ctx, gap, blocking))
			} else {
				out = append(out, g.investigateDecision(ctx, gap))
			}
		case models.SeverityWarning:
			out = append(out, g.monitorDecision(ctx, gap))
		}
	}
	return out
}

func (g *decisionGenerator) systemicDecision(ctx *genContext, entityID uuid.UUID, gaps []models.Gap) models.Decision {
	name := ctx.entityName(entityID)
	maxGap, support := 0.0, 0
	gapIDs := make([]uuid.UUID, 0, len(gaps))
	for _, gap := range gaps {
		if a := math.Abs(gap.AbsoluteGap); a > maxGap {
			maxGap = a
		}
		support += gap.SupportingRows
		gapIDs = append(gapIDs, gap.ID)
	}
	sortUUIDs(gapIDs)

	d := models.Decision{
		ID:   g.decisionID(ctx.datasetID, models.DecisionInvestigateSystemic, entityID.String(), ""),
		Type: models.DecisionInvestigateSystemic,
		Summary: fmt.Sprintf("Investigate systemic shortfalls across %s (%d critical gaps)",
			name, len(gaps)),
		Reasoning: fmt.Sprintf("%d values of %s miss plan at critical severity. A cluster this size points at a shared cause rather than row-level noise.",
			len(gaps), name),
		EntityID:        &entityID,
		ImpactScore:     g.impact(ctx, maxGap),
		ConfidenceScore: confidenceFromRows(support),
		UrgencyScore:    g.urgency(ctx, entityID, "", models.SeverityCritical),
		GapCount:        len(gaps),
		Evidence:        models.Evidence{GapIDs: gapIDs},
	}
	return d
}

func (g *decisionGenerator) escalateDecision(ctx *genContext, gap models.Gap, blocking []models.Constraint) models.Decision {
	conIDs := make([]uuid.UUID, 0, len(blocking))
	for _, c := range blocking {
		conIDs = append(conIDs, c.ID)
	}
	sortUUIDs(conIDs)

	entityID := gap.EntityID
	return models.Decision{
		ID:   g.decisionID(ctx.datasetID, models.DecisionEscalate, gap.ID.String(), ""),
		Type: models.DecisionEscalate,
		Summary: fmt.Sprintf("Escalate %s for %s %q: critical gap with a blocking condition",
			gap.MetricName, ctx.entityName(entityID), gap.EntityValue),
		Reasoning: fmt.Sprintf("%s is at %s against a plan of %s (%s) and a blocking condition is recorded: %s",
			gap.MetricName, trimFloat(gap.ActualValue), trimFloat(gap.PlanValue),
			describeGap(gap), blocking[0].Description),
		EntityID:        &entityID,
		ImpactScore:     g.impact(ctx, math.Abs(gap.AbsoluteGap)),
		ConfidenceScore: confidenceFromRows(gap.SupportingRows),
		UrgencyScore:    g.urgency(ctx, entityID, gap.EntityValue, gap.Severity),
		GapCount:        1,
		ConstraintCount: len(blocking),
		Evidence:        models.Evidence{GapIDs: []uuid.UUID{gap.ID}, ConstraintIDs: conIDs},
	}
}

func (g *decisionGenerator) investigateDecision(ctx *genContext, gap models.Gap) models.Decision {
	entityID := gap.EntityID
	return models.Decision{
		ID:   g.decisionID(ctx.datasetID, models.DecisionInvestigate, gap.ID.String(), ""),
		Type: models.DecisionInvestigate,
		Summary: fmt.Sprintf("Investigate %s for %s %q",
			gap.MetricName, ctx.entityName(entityID), gap.EntityValue),
		Reasoning: fmt.Sprintf("%s is at %s against a plan of %s (%s) with no recorded explanation.",
			gap.MetricName, trimFloat(gap.ActualValue), trimFloat(gap.PlanValue), describeGap(gap)),
		EntityID:        &entityID,
		ImpactScore:     g.impact(ctx, math.Abs(gap.AbsoluteGap)),
		ConfidenceScore: confidenceFromRows(gap.SupportingRows),
		UrgencyScore:    g.urgency(ctx, entityID, gap.EntityValue, gap.Severity),
		GapCount:        1,
		Evidence:        models.Evidence{GapIDs: []uuid.UUID{gap.ID}},
	}
}

func (g *decisionGenerator) monitorDecision(ctx *genContext, gap models.Gap) models.Decision {
	entityID := gap.EntityID
	return models.Decision{
		ID:   g.decisionID(ctx.datasetID, models.DecisionMonitor, gap.ID.String(), ""),
		Type: models.DecisionMonitor,
		Summary: fmt.Sprintf("Monitor %s for %s %q",
			gap.MetricName, ctx.entityName(entityID), gap.EntityValue),
		Reasoning: fmt.Sprintf("%s deviates from plan (%s) but has not crossed the critical threshold.",
			gap.MetricName, describeGap(gap)),
		EntityID:        &entityID,
		ImpactScore:     g.impact(ctx, math.Abs(gap.AbsoluteGap)),
		ConfidenceScore: confidenceFromRows(gap.SupportingRows),
		UrgencyScore:    g.urgency(ctx, entityID, gap.EntityValue, gap.Severity),
		GapCount:        1,
		Evidence:        models.Evidence{GapIDs: []uuid.UUID{gap.ID}},
	}
}

// constraintDriven proposes actions for constraints that stand on their
// own: blocking conditions get resolved, dependencies get sequenced, and
// capacity or resource limits get an allocation review.
func (g *decisionGenerator) constraintDriven(ctx *genContext) []models.Decision {
	type bucket struct {
		dtype   models.DecisionType
		verb    string
		matched []models.Constraint
	}
	buckets := []*bucket{
		{dtype: models.DecisionResolve, verb: "Resolve blocking conditions"},
		{dtype: models.DecisionSequence, verb: "Sequence dependent work"},
		{dtype: models.DecisionAllocate, verb: "Rebalance capacity and resources"},
	}
	for _, con := range ctx.constraints {
		switch con.Type {
		case models.ConstraintBlocking:
			buckets[0].matched = append(buckets[0].matched, con)
		case models.ConstraintDependency:
			buckets[1].matched = append(buckets[1].matched, con)
		case models.ConstraintCapacity, models.ConstraintResource:
			buckets[2].matched = append(buckets[2].matched, con)
		}
	}

	var out []models.Decision
	for _, b := range buckets {
		if len(b.matched) == 0 {
			continue
		}
		conIDs := make([]uuid.UUID, 0, len(b.matched))
		for _, c := range b.matched {
			conIDs = append(conIDs, c.ID)
		}
		sortUUIDs(conIDs)

		urgency := 0.5
		if b.dtype == models.DecisionResolve {
			urgency = 0.7
		}
		out = append(out, models.Decision{
			ID:   g.decisionID(ctx.datasetID, b.dtype, "constraints", ""),
			Type: b.dtype,
			Summary: fmt.Sprintf("%s (%d found)", b.verb, len(b.matched)),
			Reasoning: fmt.Sprintf("%d %s constraints were extracted from the dataset's text columns, e.g. %s",
				len(b.matched), b.matched[0].Type, b.matched[0].Description),
			ImpactScore:     0.5,
			ConfidenceScore: confidenceFromRows(len(b.matched)),
			UrgencyScore:    clip01(urgency),
			ConstraintCount: len(b.matched),
			Evidence:        models.Evidence{ConstraintIDs: conIDs},
		})
	}
	return out
}

// patternDriven looks at the dataset as a whole. When nearly every gap
// lands on the same side of plan the problem is the plan or the operation,
// not the individual rows.
func (g *decisionGenerator) patternDriven(ctx *genContext) []models.Decision {
	under, over := 0, 0
	var gapIDs []uuid.UUID
	for _, gap := range ctx.gaps {
		switch gap.Direction {
		case models.DirectionUnder:
			under++
		case models.DirectionOver:
			over++
		default:
			continue
		}
		gapIDs = append(gapIDs, gap.ID)
	}
	total := under + over
	if total < g.cfg.SystemicGapCount {
		return nil
	}
	sortUUIDs(gapIDs)
	ratio := float64(under) / float64(total)

	switch {
	case ratio > 0.7:
		return []models.Decision{{
			ID:   g.decisionID(ctx.datasetID, models.DecisionInvestigateSystemic, "dataset", "under"),
			Type: models.DecisionInvestigateSystemic,
			Summary: fmt.Sprintf("Investigate dataset-wide underperformance (%d of %d gaps under plan)",
				under, total),
			Reasoning:       "Most gaps fall below plan. A skew this strong suggests a shared operational cause or an unrealistic plan baseline.",
			ImpactScore:     0.8,
			ConfidenceScore: confidenceFromRows(total),
			UrgencyScore:    0.8,
			GapCount:        total,
			Evidence:        models.Evidence{GapIDs: gapIDs},
		}}
	case ratio < 0.3:
		return []models.Decision{{
			ID:   g.decisionID(ctx.datasetID, models.DecisionVerifyTargets, "dataset", "over"),
			Type: models.DecisionVerifyTargets,
			Summary: fmt.Sprintf("Verify planning targets (%d of %d gaps over plan)",
				over, total),
			Reasoning:       "Most gaps exceed plan. Targets that are beaten this consistently are probably set too low to steer by.",
			ImpactScore:     0.6,
			ConfidenceScore: confidenceFromRows(total),
			UrgencyScore:    0.4,
			GapCount:        total,
			Evidence:        models.Evidence{GapIDs: gapIDs},
		}}
	}
	return nil
}

// relationshipDriven promotes well-connected entities: a critical gap on
// an entity with many graph neighbors spills over into everything joined
// to it.
func (g *decisionGenerator) relationshipDriven(ctx *genContext) []models.Decision {
	seen := make(map[uuid.UUID]bool)
	var out []models.Decision
	for _, gap := range ctx.gaps {
		if gap.Severity != models.SeverityCritical || seen[gap.EntityID] {
			continue
		}
		seen[gap.EntityID] = true
		if ctx.graph.Degree(gap.EntityID) <= 2 {
			continue
		}
		entityID := gap.EntityID
		related := ctx.graph.RelatedEntities(entityID, g.cfg.RelatedEntityLimit)
		out = append(out, models.Decision{
			ID:   g.decisionID(ctx.datasetID, models.DecisionPrioritize, entityID.String(), ""),
			Type: models.DecisionPrioritize,
			Summary: fmt.Sprintf("Prioritize %s: critical gap on a highly connected dimension",
				ctx.entityName(entityID)),
			Reasoning: fmt.Sprintf("%s joins %d other dimensions in this dataset, so its shortfall propagates further than an isolated one.",
				ctx.entityName(entityID), len(related)),
			EntityID:        &entityID,
			ImpactScore:     g.impact(ctx, math.Abs(gap.AbsoluteGap)),
			ConfidenceScore: confidenceFromRows(gap.SupportingRows),
			UrgencyScore:    clip01(urgencyBase[models.SeverityCritical] - 0.1),
			GapCount:        1,
			Evidence:        models.Evidence{GapIDs: []uuid.UUID{gap.ID}},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (g *decisionGenerator) buildThemes(datasetID string, decisions []models.Decision, names map[uuid.UUID]string) []models.DecisionTheme {
	byEntity := make(map[uuid.UUID][]models.Decision)
	var patternDecisions []models.Decision
	for _, d := range decisions {
		if d.EntityID != nil {
			byEntity[*d.EntityID] = append(byEntity[*d.EntityID], d)
		} else {
			patternDecisions = append(patternDecisions, d)
		}
	}

	entityIDs := make([]uuid.UUID, 0, len(byEntity))
	for id := range byEntity {
		entityIDs = append(entityIDs, id)
	}
	sortUUIDs(entityIDs)

	var themes []models.DecisionTheme
	for _, id := range entityIDs {
		group := byEntity[id]
		name := names[id]
		if name == "" {
			name = "entity"
		}
		theme := newTheme(datasetID, models.ThemeEntity, id.String(), group)
		theme.Headline = fmt.Sprintf("%s: %d decisions", name, len(group))
		theme.Summary = fmt.Sprintf("Decisions rooted in the %s dimension.", name)
		themes = append(themes, theme)
	}
	if len(patternDecisions) > 0 {
		theme := newTheme(datasetID, models.ThemePattern, "pattern", patternDecisions)
		theme.Headline = fmt.Sprintf("Dataset-wide patterns: %d decisions", len(patternDecisions))
		theme.Summary = "Decisions derived from whole-dataset behavior rather than a single dimension."
		themes = append(themes, theme)
	}

	sort.Slice(themes, func(i, j int) bool {
		if themes[i].MaxUrgency != themes[j].MaxUrgency {
			return themes[i].MaxUrgency > themes[j].MaxUrgency
		}
		return themes[i].ID.String() < themes[j].ID.String()
	})
	return themes
}

// newTheme builds a theme from a decision group. The representative is the
// member with the highest impact + urgency, ids as the tie-break.
func newTheme(datasetID string, ttype models.ThemeType, key string, group []models.Decision) models.DecisionTheme {
	theme := models.DecisionTheme{
		ID:            uuid.NewSHA1(themeIDNamespace, []byte(datasetID+"|"+string(ttype)+"|"+key)),
		Type:          ttype,
		DecisionCount: len(group),
	}
	best := 0
	for i, d := range group {
		theme.DecisionIDs = append(theme.DecisionIDs, d.ID)
		if d.UrgencyScore > theme.MaxUrgency {
			theme.MaxUrgency = d.UrgencyScore
		}
		bi, bb := d.ImpactScore+d.UrgencyScore, group[best].ImpactScore+group[best].UrgencyScore
		if bi > bb || (bi == bb && d.ID.String() < group[best].ID.String()) {
			best = i
		}
	}
	sortUUIDs(theme.DecisionIDs)
	theme.RepresentativeDecision = group[best].ID
	return theme
}

func (g *decisionGenerator) decisionID(datasetID string, dtype models.DecisionType, scope, variant string) uuid.UUID {
	return uuid.NewSHA1(decisionIDNamespace,
		[]byte(fmt.Sprintf("%s|%s|%s|%s", datasetID, dtype, scope, variant)))
}

// impact normalizes an absolute gap against the run's largest one, so the
// biggest gap always scores 1.0.
func (g *decisionGenerator) impact(ctx *genContext, abs float64) float64 {
	if ctx.maxAbs == 0 {
		return 0
	}
	return clip01(abs / ctx.maxAbs)
}

// urgency combines the severity base with a deadline bonus when the entity
// carries an unexpired deadline constraint.
func (g *decisionGenerator) urgency(ctx *genContext, entityID uuid.UUID, entityValue string, severity models.GapSeverity) float64 {
	u := urgencyBase[severity]
	for _, con := range ctx.constraintsFor(entityID, entityValue, models.ConstraintDeadline) {
		if !g.deadlineExpired(con.SourceText) {
			u += g.cfg.DeadlineUrgencyBonus
			break
		}
	}
	return clip01(u)
}

var deadlineDatePattern = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`)

// deadlineExpired reports whether the constraint text names a date that has
// already passed. A date we cannot parse counts as live.
func (g *decisionGenerator) deadlineExpired(text string) bool {
	raw := deadlineDatePattern.FindString(text)
	if raw == "" {
		return false
	}
	raw = strings.ReplaceAll(raw, "/", "-")
	t, err := time.Parse("2006-1-2", raw)
	if err != nil {
		return false
	}
	return t.Before(g.now())
}

func confidenceFromRows(rows int) float64 {
	return clip01(0.3 + float64(rows)*0.05)
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// describeGap renders the deviation for reasoning text.
func describeGap(gap models.Gap) string {
	if gap.PercentageGap != nil {
		return fmt.Sprintf("%+.1f%%, %s", *gap.PercentageGap, gap.Severity)
	}
	return fmt.Sprintf("%+g absolute, %s", gap.AbsoluteGap, gap.Severity)
}
