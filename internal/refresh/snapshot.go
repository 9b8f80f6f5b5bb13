// Package refresh fetches the tracking sheets, runs the aggregation pipeline
// and publishes the result as an immutable snapshot.
package refresh

import (
	"encoding/json"
	"time"

	"github.com/rcourtman/pulse-fleet/internal/aggregate"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// Snapshot is the published result of one successful refresh. Consumers
// must treat it as read-only.
type Snapshot struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Duration    time.Duration      `json:"-"`
	Rows        map[sheet.Kind]int `json:"rows"`
	aggregate.Result
}

// MarshalJSON reports the duration in milliseconds.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		DurationMs int64 `json:"durationMs"`
	}{plain(s), s.Duration.Milliseconds()})
}

// UnmarshalJSON restores a snapshot read back from the cache.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var aux struct {
		plain
		DurationMs int64 `json:"durationMs"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Snapshot(aux.plain)
	s.Duration = time.Duration(aux.DurationMs) * time.Millisecond
	return nil
}

// Summary is the headline view of the snapshot.
func (s *Snapshot) Summary() aggregate.Summary {
	return aggregate.Summarize(s.Result)
}

// Series is the chart view of the snapshot.
func (s *Snapshot) Series() aggregate.Series {
	return aggregate.BuildSeries(s.Result)
}

// Clients is the per-client breakdown of the snapshot.
func (s *Snapshot) Clients() aggregate.ClientBreakdown {
	return aggregate.ClientRows(s.Result)
}

// Attempt describes one finished refresh cycle.
type Attempt struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
	// Snapshot is set when the attempt succeeded.
	Snapshot *Snapshot
}

// Status is the refresher's view for clients deciding between rendering a
// snapshot, a loading indicator or a retry prompt.
type Status struct {
	// Loading is true until the first refresh has finished without a
	// snapshot to show.
	Loading     bool       `json:"loading"`
	Refreshing  bool       `json:"refreshing"`
	SnapshotID  string     `json:"snapshotId,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	ErrorType   string     `json:"errorType,omitempty"`
	AuthError   bool       `json:"authError,omitempty"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	Interval    string     `json:"interval"`
}
