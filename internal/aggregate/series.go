package aggregate

import (
	"sort"

	"github.com/samber/lo"
)

// MonthPoint is one raised/resolved point of a chart series.
type MonthPoint struct {
	Month    string `json:"month"`
	Raised   int    `json:"raised"`
	Resolved int    `json:"resolved"`
}

// CountPoint is one point of a plain count series.
type CountPoint struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// MonthlySeries orders buckets by key. Works for day keys too.
func MonthlySeries(buckets map[string]Bucket) []MonthPoint {
	keys := sortedKeys(buckets)
	return lo.Map(keys, func(k string, _ int) MonthPoint {
		b := buckets[k]
		return MonthPoint{Month: k, Raised: b.Raised, Resolved: b.Resolved}
	})
}

// CountSeries orders monthly counts by month.
func CountSeries(counts map[string]int) []CountPoint {
	keys := sortedKeys(counts)
	return lo.Map(keys, func(k string, _ int) CountPoint {
		return CountPoint{Month: k, Count: counts[k]}
	})
}

// Series is the chart-ready view of a Result.
type Series struct {
	Misalignment      []MonthPoint `json:"misalignment"`
	MisalignmentDaily []MonthPoint `json:"misalignmentDaily"`
	Alerts            []CountPoint `json:"alerts"`
	Issues            []MonthPoint `json:"issues"`
	HistoricalVideos  []MonthPoint `json:"historicalVideos"`
}

// BuildSeries flattens every monthly map of r into ordered series.
func BuildSeries(r Result) Series {
	return Series{
		Misalignment:      MonthlySeries(r.Misalignment.Monthly),
		MisalignmentDaily: MonthlySeries(r.Misalignment.Daily),
		Alerts:            CountSeries(r.Alerts.Monthly),
		Issues:            MonthlySeries(r.Issues.AllIssues.Monthly),
		HistoricalVideos:  MonthlySeries(r.Issues.HistoricalVideos.Monthly),
	}
}

// Totals are the headline numbers of the dashboard.
type Totals struct {
	MisalignmentsRaised   int `json:"misalignmentsRaised"`
	MisalignmentsResolved int `json:"misalignmentsResolved"`
	Alerts                int `json:"alerts"`
	IssuesRaised          int `json:"issuesRaised"`
	IssuesResolved        int `json:"issuesResolved"`
	HistoricalVideos      int `json:"historicalVideos"`
}

func sumRaised(m map[string]Bucket) int {
	return lo.SumBy(lo.Values(m), func(b Bucket) int { return b.Raised })
}

func sumResolved(m map[string]Bucket) int {
	return lo.SumBy(lo.Values(m), func(b Bucket) int { return b.Resolved })
}

// ComputeTotals sums every monthly map of r.
func ComputeTotals(r Result) Totals {
	return Totals{
		MisalignmentsRaised:   sumRaised(r.Misalignment.Monthly),
		MisalignmentsResolved: sumResolved(r.Misalignment.Monthly),
		Alerts:                lo.Sum(lo.Values(r.Alerts.Monthly)),
		IssuesRaised:          sumRaised(r.Issues.AllIssues.Monthly),
		IssuesResolved:        sumResolved(r.Issues.AllIssues.Monthly),
		HistoricalVideos:      sumRaised(r.Issues.HistoricalVideos.Monthly),
	}
}

// Summary pairs the totals with the response-time summaries of both issue sets.
type Summary struct {
	Totals                   Totals              `json:"totals"`
	IssueResponseTimes       ResponseTimeSummary `json:"issueResponseTimes"`
	HistoricalVideoResponses ResponseTimeSummary `json:"historicalVideoResponseTimes"`
}

// Summarize builds the headline view of r.
func Summarize(r Result) Summary {
	return Summary{
		Totals:                   ComputeTotals(r),
		IssueResponseTimes:       SummarizeResponseTimes(r.Issues.AllIssues.ResponseTimes),
		HistoricalVideoResponses: SummarizeResponseTimes(r.Issues.HistoricalVideos.ResponseTimes),
	}
}

// ClientRow is one line of a per-client breakdown table.
type ClientRow struct {
	Client   string `json:"client"`
	Month    string `json:"month"`
	Count    int    `json:"count"`
	Resolved int    `json:"resolved,omitempty"`
	// Unique is the number of distinct vehicles, misalignment rows only.
	Unique int `json:"unique,omitempty"`
}

// ClientBreakdown holds the per-client tables of every sheet.
type ClientBreakdown struct {
	Misalignment     []ClientRow `json:"misalignment"`
	Alerts           []ClientRow `json:"alerts"`
	Issues           []ClientRow `json:"issues"`
	HistoricalVideos []ClientRow `json:"historicalVideos"`
}

// ClientRows flattens the client stats of r, sorted by client then month.
func ClientRows(r Result) ClientBreakdown {
	return ClientBreakdown{
		Misalignment: flatten(r.Misalignment.ClientStats, func(v VehicleStats) ClientRow {
			return ClientRow{Count: v.Count, Unique: len(v.Vehicles)}
		}),
		Alerts: flatten(r.Alerts.ClientStats, func(n int) ClientRow {
			return ClientRow{Count: n}
		}),
		Issues:           flatten(r.Issues.AllIssues.ClientStats, bucketRow),
		HistoricalVideos: flatten(r.Issues.HistoricalVideos.ClientStats, bucketRow),
	}
}

func bucketRow(b Bucket) ClientRow {
	return ClientRow{Count: b.Raised, Resolved: b.Resolved}
}

func flatten[V any](stats map[string]map[string]V, row func(V) ClientRow) []ClientRow {
	out := make([]ClientRow, 0)
	for _, client := range sortedKeys(stats) {
		months := stats[client]
		for _, month := range sortedKeys(months) {
			r := row(months[month])
			r.Client, r.Month = client, month
			out = append(out, r)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
