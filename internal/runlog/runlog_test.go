package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, Entry{
		ID:         "01A",
		StartedAt:  base,
		Duration:   1500 * time.Millisecond,
		OK:         true,
		SnapshotID: "snap-1",
		Rows:       map[sheet.Kind]int{sheet.KindMisalignment: 10, sheet.KindAlerts: 4, sheet.KindIssues: 7},
	}))
	require.NoError(t, s.Record(ctx, Entry{
		ID:        "01B",
		StartedAt: base.Add(5 * time.Minute),
		Duration:  200 * time.Millisecond,
		Error:     "fetch_values failed for alerts: status 403",
	}))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "01B", entries[0].ID)
	assert.False(t, entries[0].OK)
	assert.Contains(t, entries[0].Error, "403")

	first := entries[1]
	assert.True(t, first.OK)
	assert.Equal(t, base, first.StartedAt)
	assert.Equal(t, 1500*time.Millisecond, first.Duration)
	assert.Equal(t, "snap-1", first.SnapshotID)
	assert.Equal(t, 4, first.Rows[sheet.KindAlerts])

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := Entry{ID: "dup", StartedAt: time.Now()}

	require.NoError(t, s.Record(ctx, e))
	assert.Error(t, s.Record(ctx, e))
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, Entry{ID: "old", StartedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Record(ctx, Entry{ID: "new", StartedAt: now}))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].ID)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Entry{ID: "kept", StartedAt: time.Now(), OK: true}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].ID)
}
