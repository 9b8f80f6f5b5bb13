package aggregate

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// NotAvailable is shown when there are no samples to summarise.
const NotAvailable = "N/A"

// ResponseTimes holds positive resolved-minus-raised durations. It encodes
// as integer milliseconds.
type ResponseTimes []time.Duration

// MarshalJSON encodes the samples as milliseconds.
func (r ResponseTimes) MarshalJSON() ([]byte, error) {
	ms := make([]int64, len(r))
	for i, d := range r {
		ms[i] = d.Milliseconds()
	}
	return json.Marshal(ms)
}

// UnmarshalJSON decodes millisecond samples.
func (r *ResponseTimes) UnmarshalJSON(data []byte) error {
	var ms []int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	out := make(ResponseTimes, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	*r = out
	return nil
}

// ResponseTimeSummary is the fastest/median/slowest view of a sample set.
type ResponseTimeSummary struct {
	Fastest string `json:"fastest"`
	Median  string `json:"median"`
	Slowest string `json:"slowest"`
	Samples int    `json:"samples"`
}

// SummarizeResponseTimes sorts a copy of samples and picks the minimum, the
// element at len/2 (the upper median for even counts) and the maximum.
func SummarizeResponseTimes(samples []time.Duration) ResponseTimeSummary {
	if len(samples) == 0 {
		return ResponseTimeSummary{Fastest: NotAvailable, Median: NotAvailable, Slowest: NotAvailable}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	return ResponseTimeSummary{
		Fastest: FormatDuration(sorted[0]),
		Median:  FormatDuration(sorted[len(sorted)/2]),
		Slowest: FormatDuration(sorted[len(sorted)-1]),
		Samples: len(sorted),
	}
}

// FormatDuration renders d with its coarsest non-zero unit and, when
// non-zero, the next finer one: "2d 5h", "3h 12m", "1m 30s", "9m", "45s".
// Units are truncated, never rounded.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return twoUnits(days, "d", hours%24, "h")
	case hours > 0:
		return twoUnits(hours, "h", minutes%60, "m")
	case minutes > 0:
		return twoUnits(minutes, "m", seconds%60, "s")
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func twoUnits(major int64, majorUnit string, minor int64, minorUnit string) string {
	if minor == 0 {
		return fmt.Sprintf("%d%s", major, majorUnit)
	}
	return fmt.Sprintf("%d%s %d%s", major, majorUnit, minor, minorUnit)
}
