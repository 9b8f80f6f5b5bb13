// Package aggregate folds raw tracking tables into monthly, daily and
// per-client aggregates. Every function here is pure: it reads a table and
// returns a freshly built report without touching shared state.
package aggregate

import "github.com/rcourtman/pulse-fleet/internal/sheet"

// UnknownClient labels rows whose client cell is absent or empty.
const UnknownClient = "Unknown"

// Bucket is a raised/resolved pair for one month or day.
type Bucket struct {
	Raised   int `json:"raised"`
	Resolved int `json:"resolved"`
}

// Filters holds the free-text markers used to classify rows.
type Filters struct {
	// AlertSentinels mark alert rows that report "nothing happened".
	AlertSentinels []string `yaml:"alert_sentinels" json:"alertSentinels"`
	// HistoricalVideo marks issues that are historical video requests.
	HistoricalVideo []string `yaml:"historical_video" json:"historicalVideo"`
}

// DefaultFilters returns the markers used by the tracking sheets.
func DefaultFilters() Filters {
	return Filters{
		AlertSentinels:  []string{"no l2 alerts found"},
		HistoricalVideo: []string{"historical video request"},
	}
}

func clientName(raw string) string {
	if raw == "" {
		return UnknownClient
	}
	return raw
}

func addBucket(m map[string]Bucket, key string, raised, resolved int) {
	b := m[key]
	b.Raised += raised
	b.Resolved += resolved
	m[key] = b
}

func clientMonth[V any](stats map[string]map[string]V, client string) map[string]V {
	months, ok := stats[client]
	if !ok {
		months = make(map[string]V)
		stats[client] = months
	}
	return months
}

// Options selects the column matchers and filters for a pipeline run.
type Options struct {
	Matchers map[sheet.Kind]sheet.Matchers
	Filters  Filters
}

// DefaultOptions returns the matchers and filters of the tracking sheets.
func DefaultOptions() Options {
	matchers := make(map[sheet.Kind]sheet.Matchers, len(sheet.Kinds))
	for _, kind := range sheet.Kinds {
		matchers[kind] = sheet.DefaultMatchers(kind)
	}
	return Options{Matchers: matchers, Filters: DefaultFilters()}
}

func (o Options) columns(kind sheet.Kind, t sheet.Table) sheet.Columns {
	m, ok := o.Matchers[kind]
	if !ok {
		m = sheet.DefaultMatchers(kind)
	}
	return sheet.Resolve(t.Header(), m)
}
