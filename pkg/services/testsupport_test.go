package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// memAnalysisRepo is an in-memory snapshot store used by service tests.
type memAnalysisRepo struct {
	mu        sync.Mutex
	snapshots map[string]*models.AnalysisResult
	saveErr   error
}

func newMemAnalysisRepo() *memAnalysisRepo {
	return &memAnalysisRepo{snapshots: make(map[string]*models.AnalysisResult)}
}

func (r *memAnalysisRepo) Save(_ context.Context, result *models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	stored := *result
	r.snapshots[result.DatasetID] = &stored
	return nil
}

func (r *memAnalysisRepo) GetLatest(_ context.Context, datasetID string) (*models.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.snapshots[datasetID]
	if !ok {
		return nil, apperrors.ErrNoAnalysis
	}
	copied := *result
	return &copied, nil
}

// memLedgerRepo is an in-memory append-only ledger used by service tests.
type memLedgerRepo struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
	nextSeq int64
}

func newMemLedgerRepo() *memLedgerRepo { return &memLedgerRepo{} }

func (r *memLedgerRepo) Append(_ context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	saved := *entry
	saved.Seq = r.nextSeq
	r.entries = append(r.entries, saved)
	return &saved, nil
}

func (r *memLedgerRepo) LatestByDecision(_ context.Context, decisionID uuid.UUID) (*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].DecisionID == decisionID {
			e := r.entries[i]
			return &e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memLedgerRepo) LatestStatuses(_ context.Context, datasetID string) (map[uuid.UUID]models.LedgerStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make(map[uuid.UUID]models.LedgerStatus)
	for _, e := range r.entries {
		if e.DatasetID == datasetID {
			statuses[e.DecisionID] = e.Status
		}
	}
	return statuses, nil
}

func (r *memLedgerRepo) ListByDataset(_ context.Context, datasetID string, descending bool) ([]models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range r.entries {
		if e.DatasetID == datasetID {
			out = append(out, e)
		}
	}
	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Column builders for synthetic sheets.

func textColumn(name string, index int, values ...string) models.Column {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		if v == "" {
			cells[i] = models.NullCell()
		} else {
			cells[i] = models.StringCell(v)
		}
	}
	return models.Column{Name: name, Index: index, Cells: cells}
}

func numberColumn(name string, index int, values ...float64) models.Column {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		cells[i] = models.NumberCell(v)
	}
	return models.Column{Name: name, Index: index, Cells: cells}
}

func dateColumn(name string, index int, dates ...time.Time) models.Column {
	cells := make([]models.Cell, len(dates))
	for i, d := range dates {
		cells[i] = models.TimeCell(d)
	}
	return models.Column{Name: name, Index: index, Cells: cells}
}

func repeatDates(d time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = d.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func newTable(sheetID, name string, order int, cols ...models.Column) models.Table {
	return models.Table{SheetID: sheetID, Name: name, Filename: "test.xlsx", Order: order, Columns: cols}
}

// planActualTables builds a canonical plan sheet and actual sheet over the
// same region dimension, returning the pair most tests start from.
func planActualTables(regions []string, plans, actuals []float64) (models.Table, models.Table) {
	future := time.Now().Add(90 * 24 * time.Hour)
	past := time.Now().Add(-90 * 24 * time.Hour)

	plan := newTable("sheet-plan", "plan", 0,
		textColumn("region", 0, regions...),
		numberColumn("target units", 1, plans...),
		dateColumn("period", 2, repeatDates(future, len(regions))...),
	)
	actual := newTable("sheet-actual", "results", 1,
		textColumn("region", 0, regions...),
		numberColumn("actual units", 1, actuals...),
		dateColumn("period", 2, repeatDates(past, len(regions))...),
	)
	return plan, actual
}

func futureDate() time.Time { return time.Now().Add(90 * 24 * time.Hour) }

func pastDate() time.Time { return time.Now().Add(-90 * 24 * time.Hour) }

func manyRegions(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("region-%02d", i)
	}
	return out
}
