// Package sheet models the raw tables pulled from the tracking spreadsheets
// and resolves their header rows into semantic columns.
package sheet

import "strings"

// Kind identifies one of the tracked sheets.
type Kind string

const (
	KindMisalignment Kind = "misalignment"
	KindAlerts       Kind = "alerts"
	KindIssues       Kind = "issues"
)

// Kinds lists every tracked sheet in a stable order.
var Kinds = []Kind{KindMisalignment, KindAlerts, KindIssues}

// Ref locates a sheet range in a spreadsheet.
type Ref struct {
	Kind          Kind   `yaml:"-" json:"kind"`
	SpreadsheetID string `yaml:"spreadsheet_id" json:"spreadsheetId"`
	Range         string `yaml:"range" json:"range"`
}

// SheetName returns the tab name of the range ("Alert_Tracking!A:Z" -> "Alert_Tracking").
func (r Ref) SheetName() string {
	name, _, _ := strings.Cut(r.Range, "!")
	return strings.Trim(name, "'")
}

// Row is one data row. Cells past the end of the row read as empty.
type Row []string

// Cell returns the cell at i, or "" when the row is too short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Table is a raw sheet: row 0 is the header, the rest are data rows.
type Table [][]string

// Header returns the header row, or nil for an empty table.
func (t Table) Header() []string {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// Rows returns the data rows after the header.
func (t Table) Rows() []Row {
	if len(t) < 2 {
		return nil
	}
	rows := make([]Row, 0, len(t)-1)
	for _, r := range t[1:] {
		rows = append(rows, Row(r))
	}
	return rows
}

// Len returns the number of data rows.
func (t Table) Len() int {
	if len(t) < 2 {
		return 0
	}
	return len(t) - 1
}
