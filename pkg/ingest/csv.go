package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/varia-hq/varia-engine/pkg/models"
)

// ReadCSV normalizes a CSV file into a single table. The sheet name is the
// filename without its extension, mirroring how a one-sheet workbook looks.
func ReadCSV(r io.Reader, filename string) ([]models.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows are padded later

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return []models.Table{buildTable(filename, name, 0, rows)}, nil
}
