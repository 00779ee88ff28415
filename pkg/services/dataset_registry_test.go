package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varia-hq/varia-engine/pkg/apperrors"
	"github.com/varia-hq/varia-engine/pkg/models"
)

func TestRegistryAddAndGet(t *testing.T) {
	r := NewDatasetRegistry()

	count := r.AddSheets("ds-1", []models.Table{
		newTable("s1", "one", 0),
		newTable("s2", "two", 1),
	})
	assert.Equal(t, 2, count)

	count = r.AddSheets("ds-1", []models.Table{newTable("s3", "three", 0)})
	assert.Equal(t, 3, count)

	tables, err := r.Sheets("ds-1")
	require.NoError(t, err)
	require.Len(t, tables, 3)

	// order is reassigned to the combined dataset position
	for i, tbl := range tables {
		assert.Equal(t, i, tbl.Order)
	}
}

func TestRegistryUnknownDataset(t *testing.T) {
	r := NewDatasetRegistry()
	_, err := r.Sheets("missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRegistryReplace(t *testing.T) {
	r := NewDatasetRegistry()
	r.AddSheets("ds-1", []models.Table{newTable("s1", "one", 0), newTable("s2", "two", 1)})

	r.Replace("ds-1", []models.Table{newTable("s9", "nine", 5)})

	tables, err := r.Sheets("ds-1")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "s9", tables[0].SheetID)
	assert.Equal(t, 0, tables[0].Order)
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewDatasetRegistry()
	r.AddSheets("ds-1", []models.Table{newTable("s1", "one", 0)})

	tables, err := r.Sheets("ds-1")
	require.NoError(t, err)
	tables[0].Name = "mutated"

	again, err := r.Sheets("ds-1")
	require.NoError(t, err)
	assert.Equal(t, "one", again[0].Name)
}
