package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// WorkbookSource reads sheets from a local .xlsx export of the tracking
// spreadsheets. The tab is the range prefix before "!"; the column span of
// the range is honoured, row bounds are not.
type WorkbookSource struct {
	path string
}

// NewWorkbookSource creates a source over the workbook at path. The file is
// reopened on every fetch so a replaced export is picked up.
func NewWorkbookSource(path string) *WorkbookSource {
	return &WorkbookSource{path: path}
}

// Fetch reads ref's tab from the workbook.
func (w *WorkbookSource) Fetch(ctx context.Context, ref sheet.Ref) (sheet.Table, error) {
	const op = "read_workbook"
	label := sheetLabel(ref)

	if err := ctx.Err(); err != nil {
		return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeTimeout, op, label, err)
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeNotFound, op, label, err)
		}
		return nil, fetcherrors.WrapDecodeError(op, label, err)
	}
	defer f.Close()

	name := ref.SheetName()
	if idx, _ := f.GetSheetIndex(name); idx < 0 {
		return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeNotFound, op, label,
			fmt.Errorf("workbook has no sheet %q (have %s)", name, strings.Join(f.GetSheetList(), ", ")))
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fetcherrors.WrapDecodeError(op, label, err)
	}

	first, last, ok := columnSpan(ref.Range)
	table := make(sheet.Table, 0, len(rows))
	for _, row := range rows {
		if ok {
			row = clip(row, first, last)
		}
		table = append(table, row)
	}
	return table, nil
}

// Close is a no-op; the workbook is only open during Fetch.
func (w *WorkbookSource) Close() error { return nil }

// columnSpan returns the zero-based column bounds of an A1 range such as
// "Tab!B:F" or "Tab!A1:Z200".
func columnSpan(rng string) (first, last int, ok bool) {
	_, cells, found := strings.Cut(rng, "!")
	if !found {
		cells = rng
	}
	from, to, found := strings.Cut(cells, ":")
	if !found {
		return 0, 0, false
	}

	a, errA := excelize.ColumnNameToNumber(strings.Trim(from, "0123456789$"))
	b, errB := excelize.ColumnNameToNumber(strings.Trim(to, "0123456789$"))
	if errA != nil || errB != nil || a > b {
		return 0, 0, false
	}
	return a - 1, b - 1, true
}

func clip(row []string, first, last int) []string {
	if first >= len(row) {
		return []string{}
	}
	if last+1 < len(row) {
		row = row[:last+1]
	}
	return row[first:]
}
