// Package runlog keeps a SQLite history of refresh attempts. It stores
// attempt metadata only; aggregates are always recomputed from the sheets.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// Entry is one recorded refresh attempt.
type Entry struct {
	ID         string             `json:"id"`
	StartedAt  time.Time          `json:"startedAt"`
	Duration   time.Duration      `json:"-"`
	OK         bool               `json:"ok"`
	Error      string             `json:"error,omitempty"`
	SnapshotID string             `json:"snapshotId,omitempty"`
	Rows       map[sheet.Kind]int `json:"rows,omitempty"`
}

// MarshalJSON reports the duration in milliseconds.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(struct {
		plain
		DurationMs int64 `json:"durationMs"`
	}{plain(e), e.Duration.Milliseconds()})
}

// Store is the run log database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the run log at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run log directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize run log schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Run log opened")
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS refresh_runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			snapshot_id TEXT NOT NULL DEFAULT '',
			misalignment_rows INTEGER NOT NULL DEFAULT 0,
			alert_rows INTEGER NOT NULL DEFAULT 0,
			issue_rows INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_refresh_runs_started
		ON refresh_runs(started_at);
	`)
	return err
}

// Record stores one attempt.
func (s *Store) Record(ctx context.Context, e Entry) error {
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (id, started_at, duration_ms, ok, error, snapshot_id,
			misalignment_rows, alert_rows, issue_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.StartedAt.UnixMilli(), e.Duration.Milliseconds(), ok, e.Error, e.SnapshotID,
		e.Rows[sheet.KindMisalignment], e.Rows[sheet.KindAlerts], e.Rows[sheet.KindIssues])
	if err != nil {
		return fmt.Errorf("record refresh run: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, ok, error, snapshot_id,
			misalignment_rows, alert_rows, issue_rows
		FROM refresh_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh runs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                            Entry
			startedMs, durMs             int64
			ok                           int
			misalignment, alerts, issues int
		)
		if err := rows.Scan(&e.ID, &startedMs, &durMs, &ok, &e.Error, &e.SnapshotID,
			&misalignment, &alerts, &issues); err != nil {
			return nil, fmt.Errorf("scan refresh run: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedMs).UTC()
		e.Duration = time.Duration(durMs) * time.Millisecond
		e.OK = ok == 1
		e.Rows = map[sheet.Kind]int{
			sheet.KindMisalignment: misalignment,
			sheet.KindAlerts:       alerts,
			sheet.KindIssues:       issues,
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes attempts that started before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_runs WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune refresh runs: %w", err)
	}
	return res.RowsAffected()
}

// RunRetention prunes attempts older than retention every interval until
// ctx is done.
func (s *Store) RunRetention(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Warn().Err(err).Msg("Run log retention failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("Pruned run log")
			}
		}
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
