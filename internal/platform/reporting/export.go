package reporting

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	dataSheet  = "Results"
	aboutSheet = "About"

	// ContentTypeXLSX is the media type of exported reports.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// built-in excelize number format "#,##0.00"
	amountFormat = 4
)

// Filename names an exported report.
func (r *Report) Filename() string {
	return fmt.Sprintf("%s-%s.xlsx", r.MeasureID, r.GeneratedAt.Format("20060102"))
}

// WriteXLSX renders r as a workbook with a results sheet and an about sheet
// describing the measure and its parameters.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(dataSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	for col, name := range r.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(dataSheet, cell, name); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(dataSheet, cell, cell, header); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(dataSheet, colName, colName, 20); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for i, row := range r.rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if v == nil {
				continue
			}
			value, isAmount := cellValue(v)
			if err := f.SetCellValue(dataSheet, cell, value); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
			if isAmount {
				if err := f.SetCellStyle(dataSheet, cell, cell, amount); err != nil {
					return fmt.Errorf("style cell %s: %w", cell, err)
				}
			}
		}
	}

	if err := writeAbout(f, r); err != nil {
		return err
	}
	return f.Write(w)
}

func cellValue(v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64(), true
	case time.Time:
		return x.UTC(), false
	default:
		return v, false
	}
}

func writeAbout(f *excelize.File, r *Report) error {
	if _, err := f.NewSheet(aboutSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	rows := [][]interface{}{
		{"Measure", r.MeasureName},
		{"Measure ID", r.MeasureID},
		{"Generated At", r.GeneratedAt.Format(time.RFC3339)},
		{"Rows", len(r.rows)},
	}
	names := make([]string, 0, len(r.Parameters))
	for name := range r.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, []interface{}{"Parameter " + name, r.Parameters[name]})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(aboutSheet, cell, &row); err != nil {
			return fmt.Errorf("write about row: %w", err)
		}
	}
	return f.SetColWidth(aboutSheet, "A", "B", 24)
}
