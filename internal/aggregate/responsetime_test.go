package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{ms(0), "0s"},
		{ms(999), "0s"},
		{ms(45000), "45s"},
		{ms(90000), "1m 30s"},
		{9 * time.Minute, "9m"},
		{ms(3700000), "1h 1m"},
		{3*time.Hour + 12*time.Minute + 59*time.Second, "3h 12m"},
		{ms(90000000), "1d 1h"},
		{2*24*time.Hour + 5*time.Hour + 30*time.Minute, "2d 5h"},
		{48 * time.Hour, "2d"},
		{-time.Minute, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestSummarizeResponseTimes(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := SummarizeResponseTimes(nil)
		assert.Equal(t, ResponseTimeSummary{Fastest: "N/A", Median: "N/A", Slowest: "N/A"}, got)
	})

	t.Run("odd", func(t *testing.T) {
		got := SummarizeResponseTimes([]time.Duration{ms(9000), ms(1000), ms(5000)})
		assert.Equal(t, ResponseTimeSummary{Fastest: "1s", Median: "5s", Slowest: "9s", Samples: 3}, got)
	})

	t.Run("even takes upper median", func(t *testing.T) {
		got := SummarizeResponseTimes([]time.Duration{time.Minute, time.Second, time.Hour, 2 * time.Second})
		assert.Equal(t, "1m", got.Median)
	})

	t.Run("does not reorder input", func(t *testing.T) {
		in := []time.Duration{ms(3000), ms(1000), ms(2000)}
		SummarizeResponseTimes(in)
		assert.Equal(t, []time.Duration{ms(3000), ms(1000), ms(2000)}, in)
	})
}
