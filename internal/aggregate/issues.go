package aggregate

import (
	"strings"

	"github.com/rcourtman/pulse-fleet/internal/dates"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// IssueStats is one view over the issue sheet.
type IssueStats struct {
	Monthly       map[string]Bucket            `json:"monthly"`
	ClientStats   map[string]map[string]Bucket `json:"clientStats"`
	ResponseTimes ResponseTimes                `json:"responseTimesMs"`
}

func newIssueStats() IssueStats {
	return IssueStats{
		Monthly:       make(map[string]Bucket),
		ClientStats:   make(map[string]map[string]Bucket),
		ResponseTimes: ResponseTimes{},
	}
}

// record counts one raised issue and, when resolved is set, its resolution.
func (s *IssueStats) record(client, monthKey string, raised dates.Date, resolved *dates.Date) {
	months := clientMonth(s.ClientStats, client)
	if resolved == nil {
		addBucket(s.Monthly, monthKey, 1, 0)
		addBucket(months, monthKey, 1, 0)
		return
	}

	addBucket(s.Monthly, monthKey, 1, 1)
	addBucket(months, monthKey, 1, 1)

	// same-day or inverted timestamps are bad data, not instant fixes
	if d := resolved.Sub(raised); d > 0 {
		s.ResponseTimes = append(s.ResponseTimes, d)
	}
}

// IssueReport aggregates the issue sheet twice: every issue, and the
// historical video request subset. A row can count in both.
type IssueReport struct {
	AllIssues        IssueStats `json:"allIssues"`
	HistoricalVideos IssueStats `json:"historicalVideos"`
	SkippedRows      int        `json:"skippedRows"`
}

// Issues builds raised/resolved counts and response-time samples.
func Issues(t sheet.Table, cols sheet.Columns, f Filters) IssueReport {
	report := IssueReport{
		AllIssues:        newIssueStats(),
		HistoricalVideos: newIssueStats(),
	}

	raisedCol := cols.Get(sheet.RoleRaised)
	resolvedCol := cols.Get(sheet.RoleResolved)
	descCol := cols.Get(sheet.RoleDescription)
	clientCol := cols.Get(sheet.RoleClient)

	for _, row := range t.Rows() {
		raised, ok := dates.Parse(raisedCol.Value(row))
		if !ok {
			report.SkippedRows++
			continue
		}
		monthKey := raised.MonthKey()
		client := clientName(clientCol.Value(row))

		var resolved *dates.Date
		if d, ok := dates.Parse(resolvedCol.Value(row)); ok {
			resolved = &d
		}

		report.AllIssues.record(client, monthKey, raised, resolved)

		if sheet.ContainsAny(strings.ToLower(descCol.Value(row)), f.HistoricalVideo) {
			report.HistoricalVideos.record(client, monthKey, raised, resolved)
		}
	}

	return report
}
