// Package dates normalises the free-form date cells found in the tracking
// sheets into calendar dates used as aggregation keys.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date with no time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`),
	regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2})$`),
}

// Parse reads day-first dates such as "05/06/2024", "5-6-24" or
// "05/06/2024 14:32:10". It reports false for anything it cannot read.
func Parse(raw string) (Date, bool) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return Date{}, false
	}

	for _, re := range patterns {
		m := re.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year = expandYear(year)
		}
		return FromTime(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)), true
	}

	// timestamps carry a time of day after the date
	if datePart, _, ok := strings.Cut(clean, " "); ok {
		return Parse(datePart)
	}

	return Date{}, false
}

// expandYear maps two-digit years above 50 to the 1900s and the rest to the 2000s.
func expandYear(yy int) int {
	if yy > 50 {
		return 1900 + yy
	}
	return 2000 + yy
}

// FromTime truncates t to its calendar date in t's location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// MonthKey returns the YYYY-MM bucket key.
func (d Date) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}

// DayKey returns the YYYY-MM-DD bucket key.
func (d Date) DayKey() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// Sub returns the duration between two dates.
func (d Date) Sub(other Date) time.Duration {
	return d.Time().Sub(other.Time())
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return d.DayKey()
}

// ParseDayKey parses a YYYY-MM-DD key produced by DayKey.
func ParseDayKey(key string) (Date, error) {
	t, err := time.Parse("2006-01-02", key)
	if err != nil {
		return Date{}, fmt.Errorf("parse day key %q: %w", key, err)
	}
	return FromTime(t), nil
}
