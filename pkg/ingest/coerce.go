package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/varia-hq/varia-engine/pkg/models"
)

// nullMarkers are raw values normalized to the uniform missing-value cell.
var nullMarkers = map[string]struct{}{
	"":     {},
	"-":    {},
	"n/a":  {},
	"na":   {},
	"null": {},
	"none": {},
	"nan":  {},
}

var cellDateLayouts = []string{
	"2006-01-02", "2006/01/02", "2006-01-02 15:04:05",
	"01/02/2006", "02/01/2006", "01-02-06", "1/2/06 15:04",
	time.RFC3339,
}

// coerceCell turns a raw string value into a typed cell. Order matters:
// null markers, then booleans, then numbers (with thousands separators and
// a leading currency sign tolerated), then dates, then plain text.
func coerceCell(raw string) models.Cell {
	s := strings.TrimSpace(raw)
	if _, ok := nullMarkers[strings.ToLower(s)]; ok {
		return models.NullCell()
	}

	switch strings.ToLower(s) {
	case "true", "yes":
		return models.BoolCell(true)
	case "false", "no":
		return models.BoolCell(false)
	}

	if f, ok := parseNumber(s); ok {
		return models.NumberCell(f)
	}

	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.TimeCell(t)
		}
	}

	return models.StringCell(s)
}

// parseNumber accepts plain numerals plus the decorations spreadsheets add:
// a currency sign, thousands separators, a trailing percent. "45%" keeps its
// face value 45 so percent columns stay comparable to how they were entered.
func parseNumber(s string) (float64, bool) {
	n := strings.TrimSuffix(s, "%")
	n = strings.TrimLeft(n, "$€£¥")
	n = strings.ReplaceAll(n, ",", "")
	n = strings.TrimSpace(n)
	if n == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// columnName returns the header cell as a column name, or a positional
// fallback when the header cell is blank.
func columnName(header string, index int) string {
	name := strings.TrimSpace(header)
	if name == "" {
		return fmt.Sprintf("column_%d", index+1)
	}
	return name
}

// sheetIDNamespace scopes the deterministic sheet identifiers.
var sheetIDNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// sheetID derives a stable identifier from the file, sheet name and
// position, so re-uploading the same workbook yields the same IDs.
func sheetID(filename, name string, order int) string {
	return uuid.NewSHA1(sheetIDNamespace, []byte(fmt.Sprintf("%s|%s|%d", filename, name, order))).String()
}

// buildTable assembles a normalized table from a header row and data rows.
// Ragged rows are padded with null cells so every column has the same length.
func buildTable(filename, name string, order int, rows [][]string) models.Table {
	t := models.Table{
		SheetID:  sheetID(filename, name, order),
		Name:     name,
		Filename: filename,
		Order:    order,
	}
	if len(rows) == 0 {
		return t
	}

	header := rows[0]
	data := rows[1:]

	t.Columns = make([]models.Column, len(header))
	for i, h := range header {
		t.Columns[i] = models.Column{
			Name:  columnName(h, i),
			Index: i,
			Cells: make([]models.Cell, len(data)),
		}
	}

	for r, row := range data {
		for c := range t.Columns {
			if c < len(row) {
				t.Columns[c].Cells[r] = coerceCell(row[c])
			} else {
				t.Columns[c].Cells[r] = models.NullCell()
			}
		}
	}
	return t
}
