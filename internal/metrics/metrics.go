// Package metrics exposes Prometheus instrumentation for the refresh
// pipeline and the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulse_fleet"

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Refresh cycles by outcome.",
	}, []string{"outcome"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of a full refresh cycle, fetch and aggregation.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of a single sheet fetch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sheet", "outcome"})

	SheetRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sheet_rows",
		Help:      "Data rows in the last successfully fetched table.",
	}, []string{"sheet"})

	SkippedRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "skipped_rows",
		Help:      "Rows left out of the last aggregation because their date did not parse.",
	}, []string{"sheet"})

	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful refresh.",
	})

	RefreshInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "refresh_in_flight",
		Help:      "1 while a refresh cycle is running.",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected live-update clients.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status.",
	}, []string{"method", "route", "status"})
)

// RecordRefresh records the outcome and duration of a refresh cycle.
func RecordRefresh(err error, d time.Duration, finished time.Time) {
	if err != nil {
		RefreshesTotal.WithLabelValues(OutcomeFailure).Inc()
	} else {
		RefreshesTotal.WithLabelValues(OutcomeSuccess).Inc()
		LastSuccess.Set(float64(finished.Unix()))
	}
	RefreshDuration.Observe(d.Seconds())
}

// RecordFetch records one sheet fetch.
func RecordFetch(sheet string, err error, d time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	FetchDuration.WithLabelValues(sheet, outcome).Observe(d.Seconds())
}

// SetSheetStats publishes the row counts of the last aggregated table.
func SetSheetStats(sheet string, rows, skipped int) {
	SheetRows.WithLabelValues(sheet).Set(float64(rows))
	SkippedRows.WithLabelValues(sheet).Set(float64(skipped))
}

// RecordHTTPRequest counts one API request.
func RecordHTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
