// Package export writes chart tables to CSV and Excel files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// Format is a table export format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Write dispatches to WriteCSV or WriteXLSX.
func Write(w io.Writer, t *analysis.Table, f Format) error {
	switch f {
	case CSV:
		return WriteCSV(w, t)
	case XLSX:
		return WriteXLSX(w, t, t.Name)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteCSV writes a header row and one line per row. Nulls are empty cells.
func WriteCSV(w io.Writer, t *analysis.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, t.Cols())
	for i := 0; i < t.Rows(); i++ {
		for j, c := range t.Columns {
			rec[j] = c.String(i)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes t to a single-sheet workbook. Numbers stay numeric,
// times are written as text in the same format as CSV export.
func WriteXLSX(w io.Writer, t *analysis.Table, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet = sheetName(sheet)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	header := make([]any, t.Cols())
	for j, name := range t.Names() {
		header[j] = excelize.Cell{StyleID: bold, Value: name}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < t.Rows(); i++ {
		row := make([]any, t.Cols())
		for j, c := range t.Columns {
			switch v := c.Value(i).(type) {
			case nil:
			case float64, bool:
				row[j] = v
			default:
				row[j] = c.String(i)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName strips characters Excel rejects and clamps to 31 runes.
func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, "'")
	if s == "" {
		return "data"
	}
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}
