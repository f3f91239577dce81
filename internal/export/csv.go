package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// CSVExporter writes tables to CSV files, columns in the table's
// canonical order.
type CSVExporter struct{}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Export writes the table to filepath, header row first.
func (e *CSVExporter) Export(table dataset.Table, filepath string) error {
	f, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := table.Columns()
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range table {
		for i, col := range columns {
			record[i] = formatCell(row[col])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// formatCell renders one value. Missing values become empty cells.
func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
