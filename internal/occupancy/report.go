package occupancy

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Occupancy"

// DayReport is the summary of one date in an occupancy report.
type DayReport struct {
	Date    string
	Summary Summary
}

// reportWriter appends rows to a single excelize sheet.
type reportWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newReportWriter(sheet string) *reportWriter {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", sheet)
	return &reportWriter{file: f, sheet: sheet, row: 1}
}

func (w *reportWriter) writeRow(values []any, style int) error {
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
	}
	if style != 0 {
		start, _ := excelize.CoordinatesToCellName(1, w.row)
		end, _ := excelize.CoordinatesToCellName(len(values), w.row)
		if err := w.file.SetCellStyle(w.sheet, start, end, style); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

// WriteReport renders one row per (date, resource) plus a bold total row per
// date as an XLSX workbook.
func WriteReport(out io.Writer, days []DayReport) error {
	w := newReportWriter(reportSheet)
	defer w.file.Close()

	bold, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	header := []any{"Date", "Resource ID", "Resource", "Available", "Occupied", "Occupancy %"}
	if err := w.writeRow(header, bold); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, d := range days {
		for _, r := range d.Summary.Resources {
			row := []any{d.Date, r.ResourceID, r.Name, r.AvailableUnits, r.OccupiedUnits, round2(r.Percent)}
			if err := w.writeRow(row, 0); err != nil {
				return fmt.Errorf("write %s resource %d: %w", d.Date, r.ResourceID, err)
			}
		}
		total := []any{d.Date, "", "Total", d.Summary.TotalSlotUnits - d.Summary.OccupiedUnits,
			d.Summary.OccupiedUnits, round2(d.Summary.Percent)}
		if err := w.writeRow(total, bold); err != nil {
			return fmt.Errorf("write %s total: %w", d.Date, err)
		}
	}

	return w.file.Write(out)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
