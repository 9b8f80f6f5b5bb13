package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcourtman/pulse-fleet/internal/aggregate"
	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/refresh"
	"github.com/rcourtman/pulse-fleet/internal/runlog"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRefresher struct {
	snap   *refresh.Snapshot
	status refresh.Status
	err    error
	calls  int
}

func (f *fakeRefresher) Current() *refresh.Snapshot { return f.snap }
func (f *fakeRefresher) Status() refresh.Status     { return f.status }

func (f *fakeRefresher) Refresh(ctx context.Context) (*refresh.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.snap, nil
}

type fakeHistory struct {
	limit   int
	entries []runlog.Entry
	err     error
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]runlog.Entry, error) {
	h.limit = limit
	return h.entries, h.err
}

func testSnapshot(t *testing.T) *refresh.Snapshot {
	t.Helper()
	result := aggregate.Run(aggregate.Tables{
		sheet.KindMisalignment: {
			{"Date", "Vehicle Numbers", "Client"},
			{"01/01/2024", "A, B", "Acme"},
			{"02/01/2024", "B", "Acme"},
		},
		sheet.KindAlerts: {
			{"Date", "Alert Type", "Client"},
			{"03/01/2024", "Overspeed", "Acme"},
			{"04/02/2024", "No L2 alerts found", ""},
		},
		sheet.KindIssues: {
			{"Issue", "Client", "Timestamp Issues Raised", "Timestamp Issues Resolved"},
			{"Historical video request", "Acme", "01/01/2024", "02/01/2024"},
		},
	}, aggregate.DefaultOptions())
	return &refresh.Snapshot{
		ID:          "01HSNAPSHOT",
		GeneratedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Rows:        map[sheet.Kind]int{sheet.KindMisalignment: 2, sheet.KindAlerts: 2, sheet.KindIssues: 1},
		Result:      result,
	}
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSnapshotRoutesWithoutSnapshot(t *testing.T) {
	r := NewRouter(&fakeRefresher{status: refresh.Status{Loading: true, Interval: "5m0s"}})

	for _, path := range []string{"/api/snapshot", "/api/misalignment", "/api/alerts", "/api/issues", "/api/summary", "/api/series", "/api/clients"} {
		w := serve(t, r, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)

		var st refresh.Status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st), path)
		assert.True(t, st.Loading, path)
	}
}

func TestSnapshotRoutes(t *testing.T) {
	snap := testSnapshot(t)
	r := NewRouter(&fakeRefresher{snap: snap})

	w := serve(t, r, http.MethodGet, "/api/misalignment")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snap.ID, w.Header().Get("X-Snapshot-ID"))
	var mis aggregate.MisalignmentReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mis))
	assert.Equal(t, aggregate.Bucket{Raised: 3, Resolved: 1}, mis.Monthly["2024-01"])

	w = serve(t, r, http.MethodGet, "/api/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	var alerts aggregate.AlertReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	assert.Equal(t, map[string]int{"2024-01": 1}, alerts.Monthly)

	w = serve(t, r, http.MethodGet, "/api/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var summary aggregate.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Totals.MisalignmentsRaised)
	assert.Equal(t, 1, summary.Totals.HistoricalVideos)
	assert.Equal(t, "1d", summary.IssueResponseTimes.Median)

	w = serve(t, r, http.MethodGet, "/api/series")
	require.Equal(t, http.StatusOK, w.Code)
	var series aggregate.Series
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &series))
	require.Len(t, series.Misalignment, 1)
	assert.Equal(t, "2024-01", series.Misalignment[0].Month)

	w = serve(t, r, http.MethodGet, "/api/clients")
	require.Equal(t, http.StatusOK, w.Code)
	var clients aggregate.ClientBreakdown
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clients))
	require.Len(t, clients.Misalignment, 1)
	assert.Equal(t, aggregate.ClientRow{Client: "Acme", Month: "2024-01", Count: 3, Unique: 2}, clients.Misalignment[0])

	w = serve(t, r, http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
	var back refresh.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &back))
	assert.Equal(t, snap.ID, back.ID)
	assert.Equal(t, snap.Issues.AllIssues.Monthly, back.Issues.AllIssues.Monthly)
}

func TestHealthAndStatus(t *testing.T) {
	r := NewRouter(&fakeRefresher{status: refresh.Status{LastError: "status 403", AuthError: true}})

	w := serve(t, r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","snapshot":false}`, w.Body.String())

	w = serve(t, r, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)
	var st refresh.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.AuthError)
	assert.Equal(t, "status 403", st.LastError)
}

func TestManualRefresh(t *testing.T) {
	f := &fakeRefresher{snap: testSnapshot(t)}
	r := NewRouter(f)

	w := serve(t, r, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	var resp RefreshResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "01HSNAPSHOT", resp.SnapshotID)
	assert.Equal(t, 1, f.calls)

	w = serve(t, r, http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestManualRefreshErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
	}{
		{
			name:     "auth",
			err:      fetcherrors.WrapAPIError("fetch_values", "alerts", errors.New("status 403"), 403),
			wantCode: http.StatusBadGateway,
			wantType: "auth",
		},
		{
			name:     "connection",
			err:      fetcherrors.WrapConnectionError("fetch_values", "issues", errors.New("refused")),
			wantCode: http.StatusBadGateway,
			wantType: "connection",
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantCode: http.StatusGatewayTimeout,
			wantType: "timeout",
		},
		{
			name:     "closed",
			err:      refresh.ErrClosed,
			wantCode: http.StatusServiceUnavailable,
			wantType: "shutting_down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(&fakeRefresher{err: tt.err})
			w := serve(t, r, http.MethodPost, "/api/refresh")
			assert.Equal(t, tt.wantCode, w.Code)

			var apiErr APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.wantType, apiErr.Code)
			assert.Equal(t, tt.wantCode, apiErr.StatusCode)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestHistory(t *testing.T) {
	r := NewRouter(&fakeRefresher{})
	w := serve(t, r, http.MethodGet, "/api/refresh/history")
	assert.Equal(t, http.StatusNotFound, w.Code)

	h := &fakeHistory{entries: []runlog.Entry{{ID: "a", OK: true, Duration: 1500 * time.Millisecond}}}
	r = NewRouter(&fakeRefresher{}, WithHistory(h))

	w = serve(t, r, http.MethodGet, "/api/refresh/history")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultHistoryLimit, h.limit)
	assert.Contains(t, w.Body.String(), `"durationMs":1500`)

	serve(t, r, http.MethodGet, "/api/refresh/history?limit=100000")
	assert.Equal(t, maxHistoryLimit, h.limit)

	w = serve(t, r, http.MethodGet, "/api/refresh/history?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.err = errors.New("disk I/O error")
	w = serve(t, r, http.MethodGet, "/api/refresh/history")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHistoryFromRunLog(t *testing.T) {
	store, err := runlog.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	require.NoError(t, store.Record(ctx, runlog.Entry{ID: "old", StartedAt: start, OK: false, Error: "status 500"}))
	require.NoError(t, store.Record(ctx, runlog.Entry{ID: "new", StartedAt: start.Add(time.Second), OK: true, SnapshotID: "snap"}))

	r := NewRouter(&fakeRefresher{}, WithHistory(store))
	w := serve(t, r, http.MethodGet, "/api/refresh/history?limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []struct {
			ID string `json:"id"`
			OK bool   `json:"ok"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "new", body.Entries[0].ID)
	assert.True(t, body.Entries[0].OK)
}

func TestRequestIDAndUnknownRoute(t *testing.T) {
	r := NewRouter(&fakeRefresher{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))

	w = serve(t, r, http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}
