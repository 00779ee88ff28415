package services

import (
	"sync"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// DatasetRegistry holds the normalized tables of each uploaded dataset in
// memory until analysis runs. Datasets are independent; the registry is the
// only cross-request mutable state outside the database.
type DatasetRegistry struct {
	mu       sync.RWMutex
	datasets map[string][]models.Table
}

// NewDatasetRegistry creates an empty registry.
func NewDatasetRegistry() *DatasetRegistry {
	return &DatasetRegistry{datasets: make(map[string][]models.Table)}
}

// AddSheets appends tables to a dataset, creating it on first upload, and
// returns the dataset's total sheet count. Sheet order is reassigned to the
// position in the combined dataset so multi-file uploads stay deterministic.
func (r *DatasetRegistry) AddSheets(datasetID string, tables []models.Table) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.datasets[datasetID]
	for _, t := range tables {
		t.Order = len(existing)
		existing = append(existing, t)
	}
	r.datasets[datasetID] = existing
	return len(existing)
}

// Sheets returns a copy of the dataset's tables, or ErrNotFound when the
// dataset has never been uploaded.
func (r *DatasetRegistry) Sheets(datasetID string) ([]models.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables, ok := r.datasets[datasetID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := make([]models.Table, len(tables))
	copy(out, tables)
	return out, nil
}

// Replace swaps a dataset's tables wholesale.
func (r *DatasetRegistry) Replace(datasetID string, tables []models.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]models.Table, len(tables))
	copy(stored, tables)
	for i := range stored {
		stored[i].Order = i
	}
	r.datasets[datasetID] = stored
}
