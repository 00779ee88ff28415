package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

const fillerRemark = "routine production week with standard throughput and nothing unusual reported on this line"

func remarksTable(remarks map[int]string) models.Table {
	regions := manyRegions(25)
	statuses := make([]string, 25)
	remarkValues := make([]string, 25)
	for i := 0; i < 25; i++ {
		statuses[i] = "ok"
		if text, ok := remarks[i]; ok {
			remarkValues[i] = text
		} else {
			remarkValues[i] = fillerRemark + " " + regions[i]
		}
	}
	statuses[20] = "line down"

	return newTable("sheet-log", "production log", 0,
		textColumn("region", 0, regions...),
		textColumn("status", 1, statuses...),
		textColumn("remarks", 2, remarkValues...),
		numberColumn("output", 3, make([]float64, 25)...),
		dateColumn("period", 4, repeatDates(pastDate(), 25)...),
	)
}

func extractConstraints(t *testing.T, table models.Table) []models.Constraint {
	t.Helper()
	tables := []models.Table{table}
	profiles := newTestClassifier().ClassifyAll(tables)
	require.NotEqual(t, models.RoleUnknown, profiles[0].Role)

	detector := NewEntityDetector(config.Defaults(), zap.NewNop())
	entities, members := detector.Detect("ds-1", tables, profiles)
	graph := BuildRelationshipGraph(entities, members)

	extractor := NewConstraintExtractor(config.Defaults(), zap.NewNop())
	return extractor.Extract("ds-1", tables, profiles, graph)
}

func constraintsOfType(constraints []models.Constraint, ctype models.ConstraintType) []models.Constraint {
	var out []models.Constraint
	for _, c := range constraints {
		if c.Type == ctype {
			out = append(out, c)
		}
	}
	return out
}

func TestExtractPatternTypes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.ConstraintType
	}{
		{"blocking", "blocked while the replacement part clears inspection downstream", models.ConstraintBlocking},
		{"deadline", "customer shipment due 2026-09-30 with customs paperwork still open", models.ConstraintDeadline},
		{"dependency", "restart depends on the line 2 retooling being signed off first", models.ConstraintDependency},
		{"capacity", "cell is limited to 500 units per week until the second shift starts", models.ConstraintCapacity},
		{"resource", "not enough certified operators available for the night shift rotation", models.ConstraintResource},
		{"in progress", "firmware rework for the batch controller is still in progress today", models.ConstraintInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			constraints := extractConstraints(t, remarksTable(map[int]string{3: tt.text}))
			matched := constraintsOfType(constraints, tt.want)
			require.Len(t, matched, 1)

			c := matched[0]
			assert.Equal(t, tt.text, c.SourceText)
			assert.Equal(t, "remarks", c.SourceColumn)
			assert.Equal(t, 3, c.RowIndex)
			require.NotNil(t, c.EntityID)
			assert.Equal(t, "region-03", c.EntityValue)
		})
	}
}

func TestExtractMultipleMatchesPerCell(t *testing.T) {
	text := "blocked on vendor payment, shipment due 2026-12-01, depends on finance sign-off"
	constraints := extractConstraints(t, remarksTable(map[int]string{5: text}))

	var types []models.ConstraintType
	for _, c := range constraints {
		if c.RowIndex == 5 && c.SourceColumn == "remarks" {
			types = append(types, c.Type)
		}
	}
	assert.ElementsMatch(t, []models.ConstraintType{
		models.ConstraintBlocking,
		models.ConstraintDeadline,
		models.ConstraintDependency,
	}, types)
}

func TestExtractRepeatedPatternSpans(t *testing.T) {
	text := "inbound capped at 50 boxes per shift. cold storage limited to 100 pallets total"
	constraints := extractConstraints(t, remarksTable(map[int]string{7: text}))

	limits := constraintsOfType(constraints, models.ConstraintCapacity)
	require.Len(t, limits, 2, "each limit statement is its own constraint")

	assert.NotEqual(t, limits[0].ID, limits[1].ID)
	assert.Contains(t, limits[0].Description, "capped at 50")
	assert.Contains(t, limits[1].Description, "limited to 100")
	for _, c := range limits {
		assert.Equal(t, text, c.SourceText)
		assert.Equal(t, 7, c.RowIndex)
	}
}

func TestExtractRareCategoryException(t *testing.T) {
	constraints := extractConstraints(t, remarksTable(nil))

	exceptions := constraintsOfType(constraints, models.ConstraintException)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "status", exceptions[0].SourceColumn)
	assert.Equal(t, 20, exceptions[0].RowIndex)
	assert.Contains(t, exceptions[0].Description, "line down")
}

func TestExtractIgnoresNumericColumns(t *testing.T) {
	constraints := extractConstraints(t, remarksTable(nil))
	for _, c := range constraints {
		assert.NotEqual(t, "output", c.SourceColumn)
		assert.NotEqual(t, "period", c.SourceColumn)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	table := remarksTable(map[int]string{
		2: "blocked until the safety audit closes out",
		9: "not enough packaging film for the full run",
	})
	first := extractConstraints(t, table)
	second := extractConstraints(t, table)
	assert.Equal(t, first, second)
}
