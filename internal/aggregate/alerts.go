package aggregate

import (
	"strings"

	"github.com/rcourtman/pulse-fleet/internal/dates"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// AlertReport aggregates the alert tracking sheet.
type AlertReport struct {
	Monthly     map[string]int            `json:"monthly"`
	ClientStats map[string]map[string]int `json:"clientStats"`
	// SentinelRows counts "no alerts" rows that were left out.
	SentinelRows int `json:"sentinelRows"`
	SkippedRows  int `json:"skippedRows"`
}

// Alerts counts alerts per month and per client, ignoring sentinel rows.
func Alerts(t sheet.Table, cols sheet.Columns, f Filters) AlertReport {
	report := AlertReport{
		Monthly:     make(map[string]int),
		ClientStats: make(map[string]map[string]int),
	}

	dateCol := cols.Get(sheet.RoleDate)
	typeCol := cols.Get(sheet.RoleAlertType)
	clientCol := cols.Get(sheet.RoleClient)

	for _, row := range t.Rows() {
		if sheet.ContainsAny(strings.ToLower(typeCol.Value(row)), f.AlertSentinels) {
			report.SentinelRows++
			continue
		}

		date, ok := dates.Parse(dateCol.Value(row))
		if !ok {
			report.SkippedRows++
			continue
		}
		monthKey := date.MonthKey()

		report.Monthly[monthKey]++
		clientMonth(report.ClientStats, clientName(clientCol.Value(row)))[monthKey]++
	}

	return report
}
