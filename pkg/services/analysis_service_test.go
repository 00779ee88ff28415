package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

type analysisFixture struct {
	svc          AnalysisService
	registry     *DatasetRegistry
	analysisRepo *memAnalysisRepo
	ledgerRepo   *memLedgerRepo
}

func newAnalysisFixture() *analysisFixture {
	registry := NewDatasetRegistry()
	analysisRepo := newMemAnalysisRepo()
	ledgerRepo := newMemLedgerRepo()
	return &analysisFixture{
		svc:          NewAnalysisService(registry, config.Defaults(), analysisRepo, ledgerRepo, zap.NewNop()),
		registry:     registry,
		analysisRepo: analysisRepo,
		ledgerRepo:   ledgerRepo,
	}
}

func seedPlanActual(f *analysisFixture, datasetID string) {
	regions := manyRegions(25)
	plans := make([]float64, 25)
	actuals := make([]float64, 25)
	for i := range plans {
		plans[i] = 1000
		actuals[i] = 950 - float64(i*40) // widening shortfall across regions
	}
	plan, actual := planActualTables(regions, plans, actuals)
	f.registry.AddSheets(datasetID, []models.Table{plan, actual})
}

func TestRunAnalysisEndToEnd(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")

	result, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	assert.Equal(t, "ds-1", result.DatasetID)
	require.Len(t, result.Sheets, 2)
	assert.Equal(t, models.RolePlan, result.Sheets[0].Role)
	assert.Equal(t, models.RoleActual, result.Sheets[1].Role)

	require.Len(t, result.Entities, 1)
	assert.Equal(t, "region", result.Entities[0].CanonicalName)

	assert.NotEmpty(t, result.Gaps)
	assert.NotEmpty(t, result.Decisions)
	assert.NotEmpty(t, result.Themes)

	// the snapshot was published
	stored, err := f.analysisRepo.GetLatest(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Equal(t, len(result.Gaps), len(stored.Gaps))
}

func TestRunAnalysisUnknownDataset(t *testing.T) {
	f := newAnalysisFixture()
	_, err := f.svc.RunAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRunAnalysisIsDeterministic(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")

	first, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)
	second, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	marshal := func(v interface{}) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, marshal(first.Entities), marshal(second.Entities))
	assert.Equal(t, marshal(first.Gaps), marshal(second.Gaps))
	assert.Equal(t, marshal(first.Decisions), marshal(second.Decisions))
	assert.Equal(t, marshal(first.Themes), marshal(second.Themes))
}

func TestRunAnalysisFailedPublishLeavesPriorSnapshot(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")

	first, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	f.analysisRepo.saveErr = assert.AnError
	_, err = f.svc.RunAnalysis(context.Background(), "ds-1")
	require.Error(t, err)

	stored, err := f.analysisRepo.GetLatest(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt, stored.CompletedAt)
}

func TestRunAnalysisRecordsUnknownSheetWarning(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")
	f.registry.AddSheets("ds-1", []models.Table{newTable("sheet-empty", "notes", 2)})

	result, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	found := false
	for _, w := range result.Warnings {
		if w.Stage == "sheet_classifier" && w.SheetID == "sheet-empty" {
			found = true
		}
	}
	assert.True(t, found, "unclassifiable sheet should be recorded as a warning")
}

func TestGetGapsSeverityFilter(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")
	_, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	critical, err := f.svc.GetGaps(context.Background(), "ds-1", "critical")
	require.NoError(t, err)
	for _, g := range critical {
		assert.Equal(t, models.SeverityCritical, g.Severity)
	}

	all, err := f.svc.GetGaps(context.Background(), "ds-1", "")
	require.NoError(t, err)
	assert.Greater(t, len(all), len(critical))

	_, err = f.svc.GetGaps(context.Background(), "ds-1", "catastrophic")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetDecisionsResolvesLedgerStatus(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")
	_, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	decisions, err := f.svc.GetDecisions(context.Background(), "ds-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, decisions)
	for _, d := range decisions {
		assert.Equal(t, models.StatusPending, d.LedgerStatus)
	}

	ledger := NewLedgerService(f.ledgerRepo, f.analysisRepo, zap.NewNop())
	_, err = ledger.Approve(context.Background(), "ds-1", decisions[0].ID, "alex", "")
	require.NoError(t, err)

	approved, err := f.svc.GetDecisions(context.Background(), "ds-1", "approved")
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, decisions[0].ID, approved[0].ID)

	pending, err := f.svc.GetDecisions(context.Background(), "ds-1", "pending")
	require.NoError(t, err)
	assert.Len(t, pending, len(decisions)-1)
}

func TestGetSummary(t *testing.T) {
	f := newAnalysisFixture()
	seedPlanActual(f, "ds-1")
	result, err := f.svc.RunAnalysis(context.Background(), "ds-1")
	require.NoError(t, err)

	summary, err := f.svc.GetSummary(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.Equal(t, len(result.Gaps), summary.GapCount)
	assert.Equal(t, len(result.Decisions), summary.DecisionCount)
	assert.Equal(t, "region", summary.PrimaryEntity)

	total := 0
	for _, n := range summary.GapsBySeverity {
		total += n
	}
	assert.Equal(t, summary.GapCount, total)
}

func TestGetSummaryNoAnalysis(t *testing.T) {
	f := newAnalysisFixture()
	_, err := f.svc.GetSummary(context.Background(), "ds-1")
	assert.ErrorIs(t, err, apperrors.ErrNoAnalysis)
}
