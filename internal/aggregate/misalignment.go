package aggregate

import (
	"sort"
	"strings"

	"github.com/rcourtman/pulse-fleet/internal/dates"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
	"github.com/samber/lo"
)

// VehicleStats is the per-client, per-month misalignment tally.
type VehicleStats struct {
	// Count is the number of vehicle reports, duplicates included.
	Count int `json:"count"`
	// Vehicles is the sorted set of distinct vehicle IDs reported.
	Vehicles []string `json:"vehicles"`
}

// MisalignmentReport aggregates the vehicle misalignment sheet.
type MisalignmentReport struct {
	Monthly     map[string]Bucket                  `json:"monthly"`
	Daily       map[string]Bucket                  `json:"daily"`
	ClientStats map[string]map[string]VehicleStats `json:"clientStats"`
	SkippedRows int                                `json:"skippedRows"`
}

// dayVehicles keeps, per day key, the vehicle list of the last row seen for
// that day. It only lives between the two passes of Misalignment.
type dayVehicles map[string][]string

// resolutions returns, per day key, how many vehicles reported that day are
// gone on the next reported day. The last day has no successor.
func (d dayVehicles) resolutions() map[string]int {
	days := lo.Keys(d)
	sort.Strings(days)

	out := make(map[string]int, len(days))
	for i := 0; i+1 < len(days); i++ {
		gone := lo.Without(lo.Uniq(d[days[i]]), d[days[i+1]]...)
		out[days[i]] = len(gone)
	}
	return out
}

// Misalignment builds monthly and daily raised counts, per-client vehicle
// tallies, and infers resolutions from day-over-day disappearance.
func Misalignment(t sheet.Table, cols sheet.Columns) MisalignmentReport {
	report := MisalignmentReport{
		Monthly:     make(map[string]Bucket),
		Daily:       make(map[string]Bucket),
		ClientStats: make(map[string]map[string]VehicleStats),
	}

	dateCol := cols.Get(sheet.RoleDate)
	vehicleCol := cols.Get(sheet.RoleVehicles)
	clientCol := cols.Get(sheet.RoleClient)

	seen := make(map[string]map[string]map[string]struct{})
	days := make(dayVehicles)

	for _, row := range t.Rows() {
		date, ok := dates.Parse(dateCol.Value(row))
		if !ok {
			report.SkippedRows++
			continue
		}
		monthKey, dayKey := date.MonthKey(), date.DayKey()
		vehicles := splitVehicles(vehicleCol.Value(row))
		client := clientName(clientCol.Value(row))

		addBucket(report.Monthly, monthKey, len(vehicles), 0)
		addBucket(report.Daily, dayKey, len(vehicles), 0)

		months := clientMonth(report.ClientStats, client)
		stats := months[monthKey]
		stats.Count += len(vehicles)
		months[monthKey] = stats

		set := clientMonth(seen, client)[monthKey]
		if set == nil {
			set = make(map[string]struct{})
			seen[client][monthKey] = set
		}
		for _, v := range vehicles {
			set[v] = struct{}{}
		}

		days[dayKey] = vehicles
	}

	for dayKey, n := range days.resolutions() {
		addBucket(report.Monthly, monthOfDay(dayKey), 0, n)
		addBucket(report.Daily, dayKey, 0, n)
	}

	for client, months := range seen {
		for monthKey, set := range months {
			ids := lo.Keys(set)
			sort.Strings(ids)
			stats := report.ClientStats[client][monthKey]
			stats.Vehicles = ids
			report.ClientStats[client][monthKey] = stats
		}
	}

	return report
}

// splitVehicles splits a comma separated vehicle cell, dropping blanks.
func splitVehicles(cell string) []string {
	return lo.Compact(lo.Map(strings.Split(cell, ","), func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

func monthOfDay(dayKey string) string {
	return dayKey[:len("2006-01")]
}
