package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRefresh(t *testing.T) {
	beforeOK := testutil.ToFloat64(RefreshesTotal.WithLabelValues(OutcomeSuccess))
	beforeFail := testutil.ToFloat64(RefreshesTotal.WithLabelValues(OutcomeFailure))

	finished := time.Unix(1_700_000_000, 0)
	RecordRefresh(nil, 2*time.Second, finished)
	RecordRefresh(errors.New("boom"), time.Second, finished.Add(time.Minute))

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(RefreshesTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(RefreshesTotal.WithLabelValues(OutcomeFailure)))
	// failures never move the success timestamp
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(LastSuccess))
}

func TestRecordFetchObservesHistogram(t *testing.T) {
	RecordFetch("alerts", nil, 300*time.Millisecond)

	metric, ok := FetchDuration.WithLabelValues("alerts", OutcomeSuccess).(prometheus.Metric)
	require.True(t, ok)

	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleSum(), 0.3)
}

func TestSetSheetStats(t *testing.T) {
	SetSheetStats("issues", 42, 3)

	assert.Equal(t, 42.0, testutil.ToFloat64(SheetRows.WithLabelValues("issues")))
	assert.Equal(t, 3.0, testutil.ToFloat64(SkippedRows.WithLabelValues("issues")))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	RecordHTTPRequest("GET", "", 404)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
