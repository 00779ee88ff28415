package models

import "time"

// CellKind identifies the coerced type of a cell value.
type CellKind string

const (
	CellEmpty  CellKind = "empty"
	CellString CellKind = "string"
	CellNumber CellKind = "number"
	CellBool   CellKind = "bool"
	CellTime   CellKind = "time"
)

// Cell is a single typed value. Null is the uniform missing-value
// representation: when Null is true the other fields are meaningless.
type Cell struct {
	Kind CellKind  `json:"kind"`
	Null bool      `json:"null,omitempty"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Bool bool      `json:"bool,omitempty"`
	Time time.Time `json:"time,omitempty"`
}

// NullCell returns the canonical missing value.
func NullCell() Cell { return Cell{Kind: CellEmpty, Null: true} }

// StringCell builds a string cell.
func StringCell(s string) Cell { return Cell{Kind: CellString, Str: s} }

// NumberCell builds a numeric cell.
func NumberCell(f float64) Cell { return Cell{Kind: CellNumber, Num: f} }

// BoolCell builds a boolean cell.
func BoolCell(b bool) Cell { return Cell{Kind: CellBool, Bool: b} }

// TimeCell builds a temporal cell.
func TimeCell(t time.Time) Cell { return Cell{Kind: CellTime, Time: t} }

// Column is one named, typed column of a normalized sheet.
// Index is the zero-based position in the original sheet, used as a
// deterministic tie-breaker throughout the pipeline.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	Cells []Cell `json:"cells"`
}

// Table is the normalized in-memory form of one sheet, produced by the
// ingestion boundary. The engine never sees raw file bytes.
type Table struct {
	SheetID  string   `json:"sheet_id"`
	Name     string   `json:"name"`
	Filename string   `json:"filename"`
	Order    int      `json:"order"` // original sheet position in the workbook
	Columns  []Column `json:"columns"`
}

// RowCount returns the number of data rows in the table.
func (t *Table) RowCount() int {
	if len(t.Columns) == 0 {
		return 0
	}
	n := 0
	for _, c := range t.Columns {
		if len(c.Cells) > n {
			n = len(c.Cells)
		}
	}
	return n
}

// ColumnByName returns the first column with the given header, or nil.
func (t *Table) ColumnByName(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Cell returns the cell at the given row, or a null cell when the column is
// ragged and the row is out of range.
func (c *Column) Cell(row int) Cell {
	if row < 0 || row >= len(c.Cells) {
		return NullCell()
	}
	return c.Cells[row]
}

// NonNull returns the column's non-null cells.
func (c *Column) NonNull() []Cell {
	out := make([]Cell, 0, len(c.Cells))
	for _, cell := range c.Cells {
		if !cell.Null {
			out = append(out, cell)
		}
	}
	return out
}
