package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/pulse-fleet/internal/config"
	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

func TestDumpFetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "issues.json"),
		[]byte(`{"values": [["Issue", "Client"], ["GPS", "Acme"]]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alerts.json"), []byte(`not json`), 0o644))

	d := NewDumpSource(dir)

	table, err := d.Fetch(context.Background(), sheet.Ref{Kind: sheet.KindIssues})
	require.NoError(t, err)
	assert.Equal(t, sheet.Table{{"Issue", "Client"}, {"GPS", "Acme"}}, table)

	_, err = d.Fetch(context.Background(), sheet.Ref{Kind: sheet.KindAlerts})
	assert.ErrorIs(t, err, fetcherrors.ErrDecodeFailed)

	_, err = d.Fetch(context.Background(), sheet.Ref{Kind: sheet.KindMisalignment})
	assert.ErrorIs(t, err, fetcherrors.ErrNotFound)
}

func TestDumpFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDumpSource(t.TempDir()).Fetch(ctx, sheet.Ref{Kind: sheet.KindIssues})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSelectsSource(t *testing.T) {
	src, err := New(&config.Config{Source: config.SourceDump, SourcePath: "/tmp"})
	require.NoError(t, err)
	assert.IsType(t, &DumpSource{}, src)

	src, err = New(&config.Config{Source: config.SourceWorkbook, SourcePath: "/tmp/x.xlsx"})
	require.NoError(t, err)
	assert.IsType(t, &WorkbookSource{}, src)

	src, err = New(&config.Config{Source: config.SourceSheets, SheetsAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &SheetsClient{}, src)
	require.NoError(t, src.Close())

	_, err = New(&config.Config{Source: "carrier-pigeon"})
	assert.Error(t, err)
}
