package services

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/models"
)

// SheetClassifier labels each ingested sheet by structural shape. The
// decision uses only row/column statistics - never sheet or column name
// keywords - so it survives renamed sheets in any language.
type SheetClassifier interface {
	// ClassifyAll profiles and classifies every table in the dataset.
	// Profiles are returned in the original sheet order. A sheet that cannot
	// be classified gets RoleUnknown; that is never an error.
	ClassifyAll(tables []models.Table) []models.SheetProfile
}

type sheetClassifier struct {
	cfg    config.AnalysisConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewSheetClassifier creates a new SheetClassifier.
func NewSheetClassifier(cfg config.AnalysisConfig, logger *zap.Logger) SheetClassifier {
	return &sheetClassifier{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("sheet-classifier"),
	}
}

var _ SheetClassifier = (*sheetClassifier)(nil)

func (s *sheetClassifier) ClassifyAll(tables []models.Table) []models.SheetProfile {
	profiles := make([]models.SheetProfile, 0, len(tables))
	for i := range tables {
		profiles = append(profiles, s.analyzeSheet(&tables[i]))
	}

	s.refine(profiles)

	for _, p := range profiles {
		s.logger.Debug("Classified sheet",
			zap.String("sheet_id", p.SheetID),
			zap.String("role", string(p.Role)),
			zap.Float64("confidence", p.Confidence))
	}
	return profiles
}

func (s *sheetClassifier) analyzeSheet(t *models.Table) models.SheetProfile {
	profile := models.SheetProfile{
		SheetID:          t.SheetID,
		Name:             t.Name,
		Order:            t.Order,
		Role:             models.RoleUnknown,
		TemporalCoverage: models.CoverageNone,
	}

	rowCount := t.RowCount()
	if rowCount == 0 || len(t.Columns) == 0 {
		return profile
	}

	profile.RowCount = rowCount
	profile.ColCount = len(t.Columns)
	profile.Columns = make([]models.ColumnProfile, 0, len(t.Columns))

	numericCols, textCols := 0, 0
	for i := range t.Columns {
		cp := s.profileColumn(&t.Columns[i], rowCount)
		profile.Columns = append(profile.Columns, cp)

		switch {
		case cp.Shape.IsNumericShape():
			numericCols++
		case cp.Shape == models.ShapeTemporal:
			profile.TemporalColCount++
		case cp.Shape.IsTextShape() || cp.Shape == models.ShapeIdentifier:
			textCols++
		}
	}

	profile.NumericColRatio = float64(numericCols) / float64(profile.ColCount)
	profile.TextColRatio = float64(textCols) / float64(profile.ColCount)
	profile.TemporalCoverage = s.temporalCoverage(t, profile.Columns)
	profile.HasAggregations = detectAggregations(t, profile.Columns)
	profile.HasComparisons = detectComparisons(profile.Columns)

	profile.Role, profile.Confidence = s.inferRole(&profile)
	return profile
}

// profileColumn computes the structural statistics of a single column.
func (s *sheetClassifier) profileColumn(col *models.Column, rowCount int) models.ColumnProfile {
	cp := models.ColumnProfile{
		Name:     col.Name,
		Index:    col.Index,
		Shape:    models.ShapeUnknown,
		RowCount: rowCount,
	}

	distinct := make(map[string]struct{})
	var samples []string
	var numeric []float64
	numberCells, timeCells, stringCells := 0, 0, 0
	totalLen := 0

	for _, cell := range col.Cells {
		if cell.Null {
			continue
		}
		cp.NonNullCount++
		key := cellKey(cell)
		if _, seen := distinct[key]; !seen {
			distinct[key] = struct{}{}
			if len(samples) < s.cfg.SampleLimit {
				samples = append(samples, key)
			}
		}
		switch cell.Kind {
		case models.CellNumber:
			numberCells++
			numeric = append(numeric, cell.Num)
		case models.CellTime:
			timeCells++
		case models.CellString:
			stringCells++
			totalLen += len(cell.Str)
		case models.CellBool:
			stringCells++
			totalLen += 5
		}
	}

	cp.DistinctCount = len(distinct)
	cp.SampleValues = samples
	if rowCount > 0 {
		cp.NullRatio = 1 - float64(cp.NonNullCount)/float64(rowCount)
	}
	if cp.NonNullCount == 0 {
		return cp
	}
	cp.UniqueRatio = float64(cp.DistinctCount) / float64(cp.NonNullCount)
	cp.IsPotentialKey = cp.UniqueRatio > 0.9

	majority := func(n int) bool { return float64(n)/float64(cp.NonNullCount) > 0.8 }

	switch {
	case majority(timeCells) || majorityParseableDates(samples, cp.NonNullCount, stringCells):
		cp.Shape = models.ShapeTemporal
	case majority(numberCells):
		fillNumericStats(&cp, numeric)
		cp.Shape = classifyNumeric(&cp)
	case stringCells > 0:
		cp.AvgLength = float64(totalLen) / float64(stringCells)
		cp.Shape = classifyText(&cp)
	}
	return cp
}

func cellKey(c models.Cell) string {
	switch c.Kind {
	case models.CellNumber:
		return trimFloat(c.Num)
	case models.CellTime:
		return c.Time.Format(time.RFC3339)
	case models.CellBool:
		if c.Bool {
			return "true"
		}
		return "false"
	default:
		return c.Str
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// dateLayouts covers the date spellings the coercion layer may have left as
// strings (locale-free numeric forms only).
var dateLayouts = []string{
	"2006-01-02", "2006/01/02", "02-01-2006", "02/01/2006",
	"01/02/2006", "2006-01-02 15:04:05", time.RFC3339,
}

func majorityParseableDates(samples []string, nonNull, stringCells int) bool {
	if stringCells == 0 || len(samples) == 0 {
		return false
	}
	limit := len(samples)
	if limit > 20 {
		limit = 20
	}
	parsed := 0
	for _, s := range samples[:limit] {
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				parsed++
				break
			}
		}
	}
	return float64(parsed)/float64(limit) > 0.8
}

func fillNumericStats(cp *models.ColumnProfile, values []float64) {
	if len(values) == 0 {
		return
	}
	cp.Min, cp.Max = values[0], values[0]
	sum := 0.0
	cp.AllIntegers = true
	for _, v := range values {
		if v < cp.Min {
			cp.Min = v
		}
		if v > cp.Max {
			cp.Max = v
		}
		if v < 0 {
			cp.HasNegatives = true
		}
		if v != math.Trunc(v) {
			cp.AllIntegers = false
		}
		sum += v
	}
	cp.Mean = sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - cp.Mean
		variance += d * d
	}
	cp.StdDev = math.Sqrt(variance / float64(len(values)))
}

func classifyNumeric(cp *models.ColumnProfile) models.ColumnShape {
	switch {
	case cp.Min >= 0 && cp.Max <= 1:
		return models.ShapePercent
	case cp.Min >= 0 && cp.Max <= 100 && cp.Mean < 50 && cp.StdDev < 30:
		return models.ShapePercent
	case cp.UniqueRatio > 0.9 && cp.AllIntegers:
		return models.ShapeIdentifier
	case cp.AllIntegers && cp.Min >= 0:
		return models.ShapeQuantity
	default:
		return models.ShapeMetric
	}
}

func classifyText(cp *models.ColumnProfile) models.ColumnShape {
	switch {
	case cp.AvgLength > 50:
		return models.ShapeFreeText
	case cp.UniqueRatio > 0.9:
		return models.ShapeIdentifier
	case cp.UniqueRatio > 0.8 && cp.AvgLength > 3:
		return models.ShapeName
	case cp.UniqueRatio < 0.1 && cp.DistinctCount < 10:
		return models.ShapeStatus
	case cp.UniqueRatio < 0.1:
		return models.ShapeCategory
	case cp.UniqueRatio < 0.5:
		return models.ShapeCategory
	default:
		return models.ShapeName
	}
}

func (s *sheetClassifier) temporalCoverage(t *models.Table, cols []models.ColumnProfile) models.TemporalCoverage {
	now := s.now()
	horizon := 30 * 24 * time.Hour
	for _, cp := range cols {
		if cp.Shape != models.ShapeTemporal {
			continue
		}
		col := t.ColumnByName(cp.Name)
		if col == nil {
			continue
		}
		var minT, maxT time.Time
		for _, cell := range col.NonNull() {
			ts, ok := cellTime(cell)
			if !ok {
				continue
			}
			if minT.IsZero() || ts.Before(minT) {
				minT = ts
			}
			if maxT.IsZero() || ts.After(maxT) {
				maxT = ts
			}
		}
		if minT.IsZero() {
			continue
		}
		switch {
		case maxT.After(now.Add(horizon)) && minT.Before(now):
			return models.CoverageMixed
		case maxT.After(now.Add(horizon)):
			return models.CoverageFuture
		case minT.Before(now.Add(-horizon)):
			return models.CoveragePast
		}
	}
	return models.CoverageNone
}

func cellTime(c models.Cell) (time.Time, bool) {
	if c.Kind == models.CellTime {
		return c.Time, true
	}
	if c.Kind == models.CellString {
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, c.Str); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// detectAggregations looks for a total row: the last value of a numeric
// column equal (within 1%) to the sum of the preceding values.
func detectAggregations(t *models.Table, cols []models.ColumnProfile) bool {
	if t.RowCount() < 3 {
		return false
	}
	numeric := 0
	for _, cp := range cols {
		if cp.Shape.IsNumericShape() {
			numeric++
		}
	}
	if t.RowCount() < 20 && numeric > len(cols)/2 {
		return true
	}
	for _, cp := range cols {
		if !cp.Shape.IsNumericShape() {
			continue
		}
		col := t.ColumnByName(cp.Name)
		if col == nil {
			continue
		}
		values := col.NonNull()
		if len(values) < 3 {
			continue
		}
		sum := 0.0
		for _, c := range values[:len(values)-1] {
			sum += c.Num
		}
		last := values[len(values)-1].Num
		if last == 0 {
			continue
		}
		if math.Abs(sum-last) < 0.01*math.Abs(last) {
			return true
		}
	}
	return false
}

// detectComparisons finds paired numeric columns whose names differ by
// exactly one qualifier token (plan vs actual in any language).
func detectComparisons(cols []models.ColumnProfile) bool {
	var numeric []models.ColumnProfile
	for _, cp := range cols {
		if cp.Shape.IsNumericShape() {
			numeric = append(numeric, cp)
		}
	}
	for i := range numeric {
		for j := i + 1; j < len(numeric); j++ {
			if namesDifferByOneToken(numeric[i].Name, numeric[j].Name) {
				return true
			}
		}
	}
	return false
}

// namesDifferByOneToken tokenizes both headers and reports whether they
// have the same length and share all tokens except one non-numeric pair.
// This catches plan/actual qualifier pairs without any keyword list while
// ignoring indexed series like "attr 1" / "attr 2".
func namesDifferByOneToken(a, b string) bool {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) < 2 || len(ta) != len(tb) {
		return false
	}
	shared := make(map[string]int)
	for _, tok := range ta {
		shared[tok]++
	}
	var extra []string
	for _, tok := range tb {
		if shared[tok] > 0 {
			shared[tok]--
		} else {
			extra = append(extra, tok)
		}
	}
	if len(extra) != 1 {
		return false
	}
	if isNumericToken(extra[0]) {
		return false
	}
	for tok, n := range shared {
		if n > 0 && isNumericToken(tok) {
			return false
		}
	}
	return true
}

func isNumericToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func tokenize(name string) []string {
	lower := strings.ToLower(name)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func (s *sheetClassifier) inferRole(p *models.SheetProfile) (models.SheetRole, float64) {
	scores := map[models.SheetRole]float64{}

	uniqueSum := 0.0
	hasKey := false
	hasHighCardKey := false
	for _, cp := range p.Columns {
		uniqueSum += cp.UniqueRatio
		if cp.IsPotentialKey {
			hasKey = true
		}
		// the dimension-table signal needs real volume behind it
		if p.RowCount >= 100 && float64(cp.DistinctCount) >= 0.95*float64(p.RowCount) && cp.Shape == models.ShapeIdentifier {
			hasHighCardKey = true
		}
	}
	uniqueAvg := uniqueSum / float64(len(p.Columns))

	// master: identifier-dominated, no time axis
	if p.TextColRatio > 0.4 && uniqueAvg > 0.6 && p.TemporalColCount == 0 {
		scores[models.RoleMaster] += 0.4
	}
	if hasKey {
		scores[models.RoleMaster] += 0.2
	}
	if hasHighCardKey {
		scores[models.RoleMaster] += 0.3
	}

	// transactional: time axis with enough rows
	if p.TemporalColCount > 0 && p.RowCount > 20 {
		scores[models.RoleTransactional] += 0.3
	}
	if p.TemporalCoverage == models.CoveragePast {
		scores[models.RoleTransactional] += 0.2
	}

	// plan: future-dated numerics
	if p.TemporalCoverage == models.CoverageFuture {
		scores[models.RolePlan] += 0.5
	}
	if p.TemporalCoverage == models.CoverageMixed && p.NumericColRatio > 0.5 {
		scores[models.RolePlan] += 0.3
	}

	// actual: past-dated numerics
	if p.TemporalCoverage == models.CoveragePast && p.NumericColRatio > 0.5 {
		scores[models.RoleActual] += 0.4
	}

	// summary: few rows, aggregate-looking numerics
	if p.HasAggregations {
		scores[models.RoleSummary] += 0.4
	}
	if p.RowCount < 20 && p.NumericColRatio > 0.6 {
		scores[models.RoleSummary] += 0.2
	}

	// comparison: paired numeric columns
	if p.HasComparisons {
		scores[models.RoleComparison] += 0.5
	}

	roles := make([]models.SheetRole, 0, len(scores))
	for role := range scores {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if scores[roles[i]] != scores[roles[j]] {
			return scores[roles[i]] > scores[roles[j]]
		}
		return roles[i] < roles[j]
	})

	if len(roles) == 0 || scores[roles[0]] < 0.2 {
		return models.RoleUnknown, 0
	}
	// A dead tie between distinct roles is an ambiguous shape.
	if len(roles) > 1 && scores[roles[0]] == scores[roles[1]] {
		return models.RoleUnknown, scores[roles[0]]
	}
	return roles[0], math.Min(scores[roles[0]], 1.0)
}

// refine applies cross-sheet adjustments: when plan sheets exist but no
// actual sheet was found, the highest-confidence transactional sheet is
// promoted to actual so gap analysis has both sides.
func (s *sheetClassifier) refine(profiles []models.SheetProfile) {
	hasPlan, hasActual := false, false
	for i := range profiles {
		switch profiles[i].Role {
		case models.RolePlan:
			hasPlan = true
		case models.RoleActual:
			hasActual = true
		}
	}
	if !hasPlan || hasActual {
		return
	}
	best := -1
	for i := range profiles {
		if profiles[i].Role != models.RoleTransactional {
			continue
		}
		if best == -1 || profiles[i].Confidence > profiles[best].Confidence {
			best = i
		}
	}
	if best >= 0 {
		profiles[best].Role = models.RoleActual
	}
}
