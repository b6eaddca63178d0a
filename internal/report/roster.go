// Package report renders session rosters as downloadable spreadsheets.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rollcall/internal/attendance"
)

// Formats accepted by Write.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

const sheetName = "Roster"

var header = []string{"Name", "Status", "Marked At", "User ID"}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Filename builds the attachment name for a roster export.
func Filename(r attendance.Roster, format string) string {
	return fmt.Sprintf("roster_%s_%s.%s", shortID(r.SessionID), r.StartTime.UTC().Format("20060102"), format)
}

// Write renders r in format ("xlsx" or "csv") to w.
func Write(w io.Writer, r attendance.Roster, format string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatXLSX, "":
		return WriteXLSX(w, r)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteCSV writes a UTF-8 CSV with a BOM so spreadsheet apps detect the encoding.
func WriteCSV(w io.Writer, r attendance.Roster) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, line := range r.Lines {
		cells := row(line)
		for i, v := range cells {
			cells[i] = escapeFormula(v)
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with a totals footer.
func WriteXLSX(w io.Writer, r attendance.Roster) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for idx, line := range r.Lines {
		for col, v := range row(line) {
			cell, err := excelize.CoordinatesToCellName(col+1, idx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}

	footer := len(r.Lines) + 3
	totals := []struct {
		label string
		value int
	}{
		{"Present", r.Present},
		{"Absent", r.Absent},
		{"Expected", r.Expected},
		{"Total marked", r.Total},
	}
	for i, t := range totals {
		if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", footer+i), t.label); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, fmt.Sprintf("B%d", footer+i), t.value); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", "B", 12)
	_ = f.SetColWidth(sheetName, "C", "C", 22)
	_ = f.SetColWidth(sheetName, "D", "D", 38)

	return f.Write(w)
}

func row(line attendance.RosterLine) []string {
	marked := ""
	if line.MarkedAt != nil {
		marked = line.MarkedAt.UTC().Format(time.RFC3339)
	}
	return []string{line.Name, string(line.Status), marked, line.UserID}
}

// escapeFormula prefixes cells a spreadsheet would evaluate as a formula.
// Names come straight from the public mark endpoint.
func escapeFormula(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
