package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

func detectEntities(t *testing.T, tables ...models.Table) ([]models.Entity, []models.EntityMember) {
	t.Helper()
	classifier := newTestClassifier()
	profiles := classifier.ClassifyAll(tables)
	detector := NewEntityDetector(config.Defaults(), zap.NewNop())
	return detector.Detect("ds-1", tables, profiles)
}

func TestDetectMergesOverlappingColumns(t *testing.T) {
	plan, actual := planActualTables(manyRegions(25),
		make([]float64, 25), make([]float64, 25))

	entities, members := detectEntities(t, plan, actual)

	require.Len(t, entities, 1)
	e := entities[0]
	assert.Equal(t, "region", e.CanonicalName)
	assert.Equal(t, 25, e.Cardinality)
	assert.ElementsMatch(t, []string{"sheet-plan", "sheet-actual"}, e.SourceSheets)
	assert.True(t, e.IsPrimary)

	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, e.ID, m.EntityID)
		assert.Equal(t, "region", m.ColumnName)
	}
}

func TestDetectKeepsDisjointColumnsSeparate(t *testing.T) {
	plan, _ := planActualTables(manyRegions(25), make([]float64, 25), make([]float64, 25))
	products := make([]string, 25)
	for i := range products {
		products[i] = manyRegions(50)[i+25]
	}
	other := newTable("sheet-products", "products", 1,
		textColumn("product", 0, products...),
		numberColumn("actual units", 1, make([]float64, 25)...),
		dateColumn("period", 2, repeatDates(pastDate(), 25)...),
	)

	entities, _ := detectEntities(t, plan, other)
	assert.Len(t, entities, 2)
}

func TestMergeableCardinalityRatioVeto(t *testing.T) {
	cfg := config.Defaults()
	cfg.JaccardThreshold = 0.02 // permissive overlap so only the ratio decides
	detector := NewEntityDetector(cfg, zap.NewNop()).(*entityDetector)

	values := func(names ...string) map[string]struct{} {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		return set
	}

	small := &candidate{values: values("a", "b", "c")}
	big := &candidate{values: values(manyRegions(60)...)}
	for v := range small.values {
		big.values[v] = struct{}{}
	}

	// 63 vs 3 distinct values is beyond an order of magnitude apart
	assert.False(t, detector.mergeable(small, big))

	peer := &candidate{values: values("a", "b", "c", "d", "e")}
	assert.True(t, detector.mergeable(small, peer))
}

func TestDetectCanonicalNameIsMostFrequentHeader(t *testing.T) {
	regions := manyRegions(25)
	mk := func(sheetID, colName string, order int, future bool) models.Table {
		d := pastDate()
		if future {
			d = futureDate()
		}
		return newTable(sheetID, sheetID, order,
			textColumn(colName, 0, regions...),
			numberColumn("units", 1, make([]float64, 25)...),
			dateColumn("period", 2, repeatDates(d, 25)...),
		)
	}
	tables := []models.Table{
		mk("sheet-1", "area", 0, true),
		mk("sheet-2", "area", 1, false),
		mk("sheet-3", "zone", 2, false),
	}

	entities, _ := detectEntities(t, tables...)
	require.Len(t, entities, 1)
	assert.Equal(t, "area", entities[0].CanonicalName)
}

func TestDetectIsDeterministic(t *testing.T) {
	plan, actual := planActualTables(manyRegions(25),
		make([]float64, 25), make([]float64, 25))

	first, firstMembers := detectEntities(t, plan, actual)
	second, secondMembers := detectEntities(t, plan, actual)

	assert.Equal(t, first, second)
	assert.Equal(t, firstMembers, secondMembers)
}

func TestDetectSkipsUnknownSheets(t *testing.T) {
	empty := newTable("sheet-empty", "empty", 0)
	entities, members := detectEntities(t, empty)
	assert.Empty(t, entities)
	assert.Empty(t, members)
}
