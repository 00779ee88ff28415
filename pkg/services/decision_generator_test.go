package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

func newTestGenerator() DecisionGenerator {
	return NewDecisionGenerator(config.Defaults(), zap.NewNop())
}

func testGap(entityValue string, severity models.GapSeverity, abs float64) models.Gap {
	direction := models.DirectionOver
	if abs < 0 {
		direction = models.DirectionUnder
	}
	return models.Gap{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte("gap|"+entityValue+"|"+fmt.Sprint(abs))),
		EntityID:       testEntityID,
		EntityName:     "region",
		EntityValue:    entityValue,
		MetricName:     "units",
		PlanValue:      1000,
		ActualValue:    1000 + abs,
		AbsoluteGap:    abs,
		Direction:      direction,
		Severity:       severity,
		SupportingRows: 4,
	}
}

func testConstraint(ctype models.ConstraintType, entityValue, text string) models.Constraint {
	id := testEntityID
	return models.Constraint{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte("con|"+string(ctype)+"|"+entityValue)),
		EntityID:    &id,
		EntityValue: entityValue,
		Type:        ctype,
		Description: string(ctype) + " noted",
		SourceText:  text,
		SourceSheet: "sheet-log",
	}
}

func generate(gaps []models.Gap, constraints []models.Constraint) []models.Decision {
	entities := []models.Entity{{ID: testEntityID, CanonicalName: "region"}}
	graph := BuildRelationshipGraph(entities, nil)
	decisions, _ := newTestGenerator().Generate("ds-1", gaps, constraints, entities, graph)
	return decisions
}

func decisionsOfType(decisions []models.Decision, dtype models.DecisionType) []models.Decision {
	var out []models.Decision
	for _, d := range decisions {
		if d.Type == dtype {
			out = append(out, d)
		}
	}
	return out
}

func TestGenerateInvestigateForCriticalGap(t *testing.T) {
	decisions := generate([]models.Gap{testGap("tokyo", models.SeverityCritical, -300)}, nil)

	investigate := decisionsOfType(decisions, models.DecisionInvestigate)
	require.Len(t, investigate, 1)

	d := investigate[0]
	assert.Equal(t, 1.0, d.ImpactScore, "largest gap in the run scores full impact")
	assert.Equal(t, 0.8, d.UrgencyScore)
	assert.Equal(t, testEntityID, *d.EntityID)
	assert.Len(t, d.Evidence.GapIDs, 1)
}

func TestGenerateEscalateWithBlockingConstraint(t *testing.T) {
	gap := testGap("tokyo", models.SeverityCritical, -300)
	blocking := testConstraint(models.ConstraintBlocking, "tokyo", "blocked on vendor")

	decisions := generate([]models.Gap{gap}, []models.Constraint{blocking})

	require.Len(t, decisionsOfType(decisions, models.DecisionEscalate), 1)
	assert.Empty(t, decisionsOfType(decisions, models.DecisionInvestigate))

	escalate := decisionsOfType(decisions, models.DecisionEscalate)[0]
	assert.Equal(t, 1, escalate.GapCount)
	assert.Equal(t, 1, escalate.ConstraintCount)
	assert.Len(t, escalate.Evidence.ConstraintIDs, 1)
}

func TestGenerateSystemicForRepeatedCriticalGaps(t *testing.T) {
	gaps := []models.Gap{
		testGap("tokyo", models.SeverityCritical, -300),
		testGap("osaka", models.SeverityCritical, -250),
		testGap("nagoya", models.SeverityCritical, -400),
	}
	decisions := generate(gaps, nil)

	systemic := decisionsOfType(decisions, models.DecisionInvestigateSystemic)
	require.NotEmpty(t, systemic)
	entitySystemic := systemic[0]
	assert.Equal(t, 3, entitySystemic.GapCount)
	assert.Len(t, entitySystemic.Evidence.GapIDs, 3)

	// the per-gap variants are replaced by the systemic one
	assert.Empty(t, decisionsOfType(decisions, models.DecisionInvestigate))
	assert.Empty(t, decisionsOfType(decisions, models.DecisionEscalate))
}

func TestGenerateMonitorForWarningGap(t *testing.T) {
	decisions := generate([]models.Gap{testGap("tokyo", models.SeverityWarning, -150)}, nil)

	monitor := decisionsOfType(decisions, models.DecisionMonitor)
	require.Len(t, monitor, 1)
	assert.Equal(t, 0.5, monitor[0].UrgencyScore)
}

func TestGenerateDeadlineRaisesUrgency(t *testing.T) {
	future := time.Now().Add(30 * 24 * time.Hour).Format("2006-01-02")
	deadline := testConstraint(models.ConstraintDeadline, "tokyo", "due "+future)

	decisions := generate([]models.Gap{testGap("tokyo", models.SeverityWarning, -150)}, []models.Constraint{deadline})
	monitor := decisionsOfType(decisions, models.DecisionMonitor)
	require.Len(t, monitor, 1)
	assert.InDelta(t, 0.7, monitor[0].UrgencyScore, 1e-9)

	expired := testConstraint(models.ConstraintDeadline, "tokyo", "due 2020-01-15")
	decisions = generate([]models.Gap{testGap("tokyo", models.SeverityWarning, -150)}, []models.Constraint{expired})
	monitor = decisionsOfType(decisions, models.DecisionMonitor)
	require.Len(t, monitor, 1)
	assert.InDelta(t, 0.5, monitor[0].UrgencyScore, 1e-9)
}

func TestGenerateConstraintDrivenDecisions(t *testing.T) {
	constraints := []models.Constraint{
		testConstraint(models.ConstraintBlocking, "tokyo", "blocked"),
		testConstraint(models.ConstraintDependency, "osaka", "depends on x"),
		testConstraint(models.ConstraintCapacity, "nagoya", "max 500"),
		testConstraint(models.ConstraintResource, "kobe", "not enough staff"),
	}
	decisions := generate(nil, constraints)

	require.Len(t, decisionsOfType(decisions, models.DecisionResolve), 1)
	require.Len(t, decisionsOfType(decisions, models.DecisionSequence), 1)

	allocate := decisionsOfType(decisions, models.DecisionAllocate)
	require.Len(t, allocate, 1)
	assert.Equal(t, 2, allocate[0].ConstraintCount)
}

func TestGenerateDatasetWidePatterns(t *testing.T) {
	var under []models.Gap
	for i := 0; i < 5; i++ {
		under = append(under, testGap(fmt.Sprintf("r%d", i), models.SeverityNormal, -50-float64(i)))
	}
	decisions := generate(under, nil)
	systemic := decisionsOfType(decisions, models.DecisionInvestigateSystemic)
	require.Len(t, systemic, 1)
	assert.Nil(t, systemic[0].EntityID)
	assert.Equal(t, 5, systemic[0].GapCount)

	var over []models.Gap
	for i := 0; i < 5; i++ {
		over = append(over, testGap(fmt.Sprintf("r%d", i), models.SeverityNormal, 50+float64(i)))
	}
	decisions = generate(over, nil)
	verify := decisionsOfType(decisions, models.DecisionVerifyTargets)
	require.Len(t, verify, 1)
	assert.Nil(t, verify[0].EntityID)
}

func TestGenerateRankingIsStable(t *testing.T) {
	gaps := []models.Gap{
		testGap("tokyo", models.SeverityCritical, -300),
		testGap("osaka", models.SeverityWarning, -150),
	}
	first := generate(gaps, nil)
	second := generate(gaps, nil)
	require.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		ok := prev.UrgencyScore > cur.UrgencyScore ||
			(prev.UrgencyScore == cur.UrgencyScore && prev.ImpactScore >= cur.ImpactScore)
		assert.True(t, ok, "decision %d out of order", i)
	}
}

func TestGenerateThemes(t *testing.T) {
	gaps := []models.Gap{
		testGap("tokyo", models.SeverityCritical, -300),
		testGap("osaka", models.SeverityWarning, -150),
	}
	entities := []models.Entity{{ID: testEntityID, CanonicalName: "region"}}
	graph := BuildRelationshipGraph(entities, nil)
	decisions, themes := newTestGenerator().Generate("ds-1", gaps, nil, entities, graph)

	require.Len(t, themes, 1)
	theme := themes[0]
	assert.Equal(t, models.ThemeEntity, theme.Type)
	assert.Equal(t, len(decisions), theme.DecisionCount)
	assert.Contains(t, theme.Headline, "region")

	var best models.Decision
	for i, d := range decisions {
		if i == 0 || d.ImpactScore+d.UrgencyScore > best.ImpactScore+best.UrgencyScore {
			best = d
		}
	}
	assert.Equal(t, best.ID, theme.RepresentativeDecision)
	assert.Equal(t, best.UrgencyScore, theme.MaxUrgency)
}
