package source

import (
	"context"
	"os"
	"path/filepath"

	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// DumpSource reads saved Sheets API responses named <kind>.json from a
// directory. It decodes them exactly like live responses.
type DumpSource struct {
	dir string
}

func NewDumpSource(dir string) *DumpSource {
	return &DumpSource{dir: dir}
}

// Fetch reads the dump for ref.Kind.
func (d *DumpSource) Fetch(ctx context.Context, ref sheet.Ref) (sheet.Table, error) {
	const op = "read_dump"
	label := sheetLabel(ref)

	if err := ctx.Err(); err != nil {
		return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeTimeout, op, label, err)
	}

	body, err := os.ReadFile(filepath.Join(d.dir, string(ref.Kind)+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fetcherrors.NewFetchError(fetcherrors.ErrorTypeNotFound, op, label, err)
		}
		return nil, fetcherrors.WrapConnectionError(op, label, err)
	}

	table, err := decodeValues(body)
	if err != nil {
		return nil, fetcherrors.WrapDecodeError(op, label, err)
	}
	return table, nil
}

func (d *DumpSource) Close() error { return nil }
