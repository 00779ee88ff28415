package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/varia-hq/varia-engine/pkg/models"
)

// ReadXLSX normalizes every sheet of a workbook into typed tables, in
// workbook order. Empty sheets are kept so the classifier can report them
// as unknown rather than silently dropping them.
func ReadXLSX(r io.Reader, filename string) ([]models.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	tables := make([]models.Table, 0, len(sheets))
	for order, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		tables = append(tables, buildTable(filename, name, order, rows))
	}
	return tables, nil
}
