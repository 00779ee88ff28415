package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// EntityDetector finds columns across sheets that carry the same
// real-world dimension and merges them into canonical entities.
type EntityDetector interface {
	// Detect clusters entity-shaped columns by value overlap. Only sheets
	// with a known role participate. The returned entities and members are
	// deterministic for identical input, including tie-breaks.
	Detect(datasetID string, tables []models.Table, profiles []models.SheetProfile) ([]models.Entity, []models.EntityMember)
}

type entityDetector struct {
	cfg    config.AnalysisConfig
	logger *zap.Logger
}

// NewEntityDetector creates a new EntityDetector.
func NewEntityDetector(cfg config.AnalysisConfig, logger *zap.Logger) EntityDetector {
	return &entityDetector{
		cfg:    cfg,
		logger: logger.Named("entity-detector"),
	}
}

var _ EntityDetector = (*entityDetector)(nil)

// entityIDNamespace scopes deterministic entity identifiers per run.
var entityIDNamespace = uuid.MustParse("a2cf8f5e-1d0b-4e6a-9c2f-6d3b8a1e4f07")

// candidate is one entity-shaped column with its distinct value set.
type candidate struct {
	sheetID     string
	sheetName   string
	columnName  string
	columnIndex int
	values      map[string]struct{}
}

func (d *entityDetector) Detect(datasetID string, tables []models.Table, profiles []models.SheetProfile) ([]models.Entity, []models.EntityMember) {
	byID := make(map[string]*models.SheetProfile, len(profiles))
	for i := range profiles {
		byID[profiles[i].SheetID] = &profiles[i]
	}

	var candidates []candidate
	for i := range tables {
		t := &tables[i]
		profile, ok := byID[t.SheetID]
		if !ok || profile.Role == models.RoleUnknown {
			continue
		}
		for _, cp := range profile.Columns {
			if !entityShaped(cp.Shape) || cp.DistinctCount < 2 {
				continue
			}
			col := t.ColumnByName(cp.Name)
			if col == nil {
				continue
			}
			candidates = append(candidates, candidate{
				sheetID:     t.SheetID,
				sheetName:   t.Name,
				columnName:  cp.Name,
				columnIndex: cp.Index,
				values:      valueSet(col),
			})
		}
	}

	// Merge order must not depend on map or input quirks.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sheetID != candidates[j].sheetID {
			return candidates[i].sheetID < candidates[j].sheetID
		}
		return candidates[i].columnIndex < candidates[j].columnIndex
	})

	parent := make([]int, len(candidates))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			if d.mergeable(&candidates[i], &candidates[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					if ri > rj {
						ri, rj = rj, ri
					}
					parent[rj] = ri
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := range candidates {
		root := find(i)
		groups[root] = append(groups[root], i)
	}
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	var entities []models.Entity
	var members []models.EntityMember
	for _, root := range roots {
		entity, groupMembers := d.buildEntity(datasetID, candidates, groups[root])
		entities = append(entities, entity)
		members = append(members, groupMembers...)
	}

	markPrimary(entities)

	d.logger.Debug("Detected entities",
		zap.String("dataset_id", datasetID),
		zap.Int("candidates", len(candidates)),
		zap.Int("entities", len(entities)))
	return entities, members
}

func entityShaped(s models.ColumnShape) bool {
	switch s {
	case models.ShapeIdentifier, models.ShapeName, models.ShapeCategory:
		return true
	}
	return false
}

func valueSet(col *models.Column) map[string]struct{} {
	set := make(map[string]struct{})
	for _, cell := range col.NonNull() {
		set[strings.ToLower(cellKey(cell))] = struct{}{}
	}
	return set
}

// mergeable applies the two merge conditions: value-set Jaccard similarity
// above the threshold, and cardinalities within the configured ratio.
func (d *entityDetector) mergeable(a, b *candidate) bool {
	ca, cb := len(a.values), len(b.values)
	if ca == 0 || cb == 0 {
		return false
	}
	lo, hi := ca, cb
	if lo > hi {
		lo, hi = hi, lo
	}
	if float64(hi)/float64(lo) > d.cfg.CardinalityRatioLimit {
		return false
	}
	inter := 0
	for v := range a.values {
		if _, ok := b.values[v]; ok {
			inter++
		}
	}
	union := ca + cb - inter
	return float64(inter)/float64(union) >= d.cfg.JaccardThreshold
}

func (d *entityDetector) buildEntity(datasetID string, candidates []candidate, group []int) (models.Entity, []models.EntityMember) {
	union := make(map[string]struct{})
	sheets := make(map[string]struct{})
	nameFreq := make(map[string]int)
	var columns []string

	for _, idx := range group {
		c := candidates[idx]
		for v := range c.values {
			union[v] = struct{}{}
		}
		sheets[c.sheetID] = struct{}{}
		nameFreq[c.columnName]++
		columns = append(columns, fmt.Sprintf("%s.%s", c.sheetName, c.columnName))
	}
	sort.Strings(columns)

	canonical := ""
	for name, freq := range nameFreq {
		if canonical == "" || freq > nameFreq[canonical] ||
			(freq == nameFreq[canonical] && name < canonical) {
			canonical = name
		}
	}

	sheetIDs := make([]string, 0, len(sheets))
	for id := range sheets {
		sheetIDs = append(sheetIDs, id)
	}
	sort.Strings(sheetIDs)

	samples := make([]string, 0, len(union))
	for v := range union {
		samples = append(samples, v)
	}
	sort.Strings(samples)
	if len(samples) > d.cfg.SampleLimit {
		samples = samples[:d.cfg.SampleLimit]
	}

	id := uuid.NewSHA1(entityIDNamespace,
		[]byte(datasetID+"|"+canonical+"|"+strings.Join(columns, ",")))

	entity := models.Entity{
		ID:            id,
		CanonicalName: canonical,
		Cardinality:   len(union),
		SourceSheets:  sheetIDs,
		SourceColumns: columns,
		SampleValues:  samples,
	}

	groupMembers := make([]models.EntityMember, 0, len(group))
	for _, idx := range group {
		c := candidates[idx]
		groupMembers = append(groupMembers, models.EntityMember{
			EntityID:    id,
			SheetID:     c.sheetID,
			ColumnName:  c.columnName,
			ColumnIndex: c.columnIndex,
		})
	}
	return entity, groupMembers
}

// markPrimary flags the entity with the highest cardinality x reach score.
func markPrimary(entities []models.Entity) {
	best := -1
	bestScore := 0
	for i := range entities {
		score := entities[i].Cardinality * len(entities[i].SourceSheets)
		if best == -1 || score > bestScore ||
			(score == bestScore && entities[i].ID.String() < entities[best].ID.String()) {
			best = i
			bestScore = score
		}
	}
	if best >= 0 {
		entities[best].IsPrimary = true
	}
}
