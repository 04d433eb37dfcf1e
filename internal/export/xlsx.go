package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/xuri/excelize/v2"
)

// Sheet names, one per collection. Row 1 holds the JSON field names.
const (
	SheetWorkers     = "Workers"
	SheetSites       = "Sites"
	SheetTimeEntries = "TimeEntries"
	SheetPayments    = "Payments"
)

var (
	workerColumns    = []string{"id", "name", "role", "phone", "email", "status", "hourlyRate", "created_at"}
	siteColumns      = []string{"id", "name", "owner", "address", "status", "startDate", "estimatedEnd", "created_at"}
	timeEntryColumns = []string{"id", "workerId", "siteId", "date", "startTime", "endTime", "totalHours", "status", "created_at"}
	paymentColumns   = []string{"id", "workerId", "week", "hours", "hourlyRate", "totalAmount", "overtime", "status", "paidDate", "method", "created_at"}
)

func writeXLSX(w io.Writer, c *types.Container) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetWorkers); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeSheet(f, SheetWorkers, workerColumns, c.Workers); err != nil {
		return err
	}
	if err := writeSheet(f, SheetSites, siteColumns, c.Sites); err != nil {
		return err
	}
	if err := writeSheet(f, SheetTimeEntries, timeEntryColumns, c.TimeEntries); err != nil {
		return err
	}
	if err := writeSheet(f, SheetPayments, paymentColumns, c.Payments); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet[T any](f *excelize.File, sheet string, columns []string, records []T) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, rec := range records {
		fields, err := toFields(rec)
		if err != nil {
			return fmt.Errorf("failed to encode %s row %d: %w", sheet, i+1, err)
		}
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			row[j] = fields[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func readXLSX(r io.Reader) (*types.Container, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var c types.Container
	if c.Workers, err = readSheet[types.Worker](f, SheetWorkers); err != nil {
		return nil, err
	}
	if c.Sites, err = readSheet[types.Site](f, SheetSites); err != nil {
		return nil, err
	}
	if c.TimeEntries, err = readSheet[types.TimeEntry](f, SheetTimeEntries); err != nil {
		return nil, err
	}
	if c.Payments, err = readSheet[types.Payment](f, SheetPayments); err != nil {
		return nil, err
	}
	return &c, nil
}

// readSheet decodes the rows of sheet into records. Cells are typed by the
// field they map to: numeric fields are parsed, everything else is kept as
// text. A missing sheet is an empty collection.
func readSheet[T any](f *excelize.File, sheet string) ([]T, error) {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) < 1 {
		return nil, nil
	}

	var zero T
	kinds, err := toFields(zero)
	if err != nil {
		return nil, err
	}

	header := rows[0]
	var out []T
	for r := 1; r < len(rows); r++ {
		row := rows[r]
		if len(row) == 0 {
			continue
		}

		fields := make(map[string]interface{}, len(header))
		for i, col := range header {
			col = strings.TrimSpace(col)
			if i >= len(row) || col == "" {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			if _, numeric := kinds[col].(float64); numeric {
				n, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("sheet %s row %d: %s is not a number: %q", sheet, r+1, col, cell)
				}
				fields[col] = n
				continue
			}
			fields[col] = cell
		}

		data, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", sheet, r+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// toFields flattens a record into its JSON field map.
func toFields(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
