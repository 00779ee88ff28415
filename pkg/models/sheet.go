package models

// SheetRole labels a sheet by its structural shape. Classification never
// looks at sheet names, so it survives renamed sheets in any language.
type SheetRole string

const (
	RoleMaster        SheetRole = "master"
	RoleTransactional SheetRole = "transactional"
	RolePlan          SheetRole = "plan"
	RoleActual        SheetRole = "actual"
	RoleSummary       SheetRole = "summary"
	RoleComparison    SheetRole = "comparison"
	RoleUnknown       SheetRole = "unknown"
)

// ColumnShape is the structural (not semantic) classification of a column.
type ColumnShape string

const (
	ShapeIdentifier ColumnShape = "identifier" // high-uniqueness key-like values
	ShapeName       ColumnShape = "name"       // high-uniqueness readable text
	ShapeCategory   ColumnShape = "category"   // low-cardinality text
	ShapeStatus     ColumnShape = "status"     // very low cardinality text
	ShapeFreeText   ColumnShape = "free_text"  // long text, remarks
	ShapeMetric     ColumnShape = "metric"     // general numeric measure
	ShapeQuantity   ColumnShape = "quantity"   // non-negative integers
	ShapePercent    ColumnShape = "percent"    // bounded 0..1 or 0..100
	ShapeTemporal   ColumnShape = "temporal"
	ShapeUnknown    ColumnShape = "unknown"
)

// IsNumericShape reports whether the shape carries measurable values.
func (s ColumnShape) IsNumericShape() bool {
	switch s {
	case ShapeMetric, ShapeQuantity, ShapePercent:
		return true
	}
	return false
}

// IsTextShape reports whether the shape is string-bearing.
func (s ColumnShape) IsTextShape() bool {
	switch s {
	case ShapeName, ShapeCategory, ShapeStatus, ShapeFreeText:
		return true
	}
	return false
}

// ColumnProfile holds the per-column statistics the classifier and the
// downstream stages work from. Everything here is derived from values,
// never from header keywords.
type ColumnProfile struct {
	Name           string      `json:"name"`
	Index          int         `json:"index"`
	Shape          ColumnShape `json:"shape"`
	RowCount       int         `json:"row_count"`
	NonNullCount   int         `json:"non_null_count"`
	DistinctCount  int         `json:"distinct_count"`
	NullRatio      float64     `json:"null_ratio"`
	UniqueRatio    float64     `json:"unique_ratio"` // distinct / non-null
	IsPotentialKey bool        `json:"is_potential_key"`

	// Numeric statistics, populated for numeric shapes.
	Min          float64 `json:"min,omitempty"`
	Max          float64 `json:"max,omitempty"`
	Mean         float64 `json:"mean,omitempty"`
	StdDev       float64 `json:"std_dev,omitempty"`
	HasNegatives bool    `json:"has_negatives,omitempty"`
	AllIntegers  bool    `json:"all_integers,omitempty"`

	// Text statistics, populated for text shapes.
	AvgLength float64 `json:"avg_length,omitempty"`

	// Up to the configured sample limit of distinct values as strings,
	// in first-seen order.
	SampleValues []string `json:"sample_values,omitempty"`
}

// TemporalCoverage describes where a sheet's dates fall relative to now.
type TemporalCoverage string

const (
	CoverageNone   TemporalCoverage = "none"
	CoveragePast   TemporalCoverage = "past"
	CoverageFuture TemporalCoverage = "future"
	CoverageMixed  TemporalCoverage = "mixed"
)

// SheetProfile is the classifier's output for one sheet: the structural
// measurements plus the inferred role and its confidence.
type SheetProfile struct {
	SheetID          string           `json:"sheet_id"`
	Name             string           `json:"name"`
	Order            int              `json:"order"`
	Role             SheetRole        `json:"role"`
	Confidence       float64          `json:"confidence"`
	RowCount         int              `json:"row_count"`
	ColCount         int              `json:"col_count"`
	NumericColRatio  float64          `json:"numeric_col_ratio"`
	TextColRatio     float64          `json:"text_col_ratio"`
	TemporalColCount int              `json:"temporal_col_count"`
	TemporalCoverage TemporalCoverage `json:"temporal_coverage"`
	HasAggregations  bool             `json:"has_aggregations"`
	HasComparisons   bool             `json:"has_comparisons"`
	Columns          []ColumnProfile  `json:"columns"`
}
