package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/logging"
	"github.com/rcourtman/pulse-fleet/internal/refresh"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// RefreshResponse is returned by a successful manual refresh.
type RefreshResponse struct {
	SnapshotID string         `json:"snapshotId"`
	Status     refresh.Status `json:"status"`
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"snapshot": r.refresher.Current() != nil,
	})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.refresher.Status())
}

// withSnapshot serves a view of the current snapshot. Until the first
// refresh succeeds it answers 503 with the refresher status so clients can
// tell loading from failure.
func (r *Router) withSnapshot(view func(*refresh.Snapshot) any) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := r.refresher.Current()
		if snap == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, r.refresher.Status())
			return
		}
		c.Header("X-Snapshot-ID", snap.ID)
		c.JSON(http.StatusOK, view(snap))
	}
}

// handleRefresh runs a refresh, joining one already in flight.
func (r *Router) handleRefresh(c *gin.Context) {
	ctx := c.Request.Context()
	snap, err := r.refresher.Refresh(ctx)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().Err(err).Msg("Manual refresh failed")

		var fe *fetcherrors.FetchError
		switch {
		case errors.Is(err, refresh.ErrClosed):
			writeError(c, http.StatusServiceUnavailable, "shutting_down", "Refresher is shutting down")
		case ctx.Err() != nil:
			writeError(c, http.StatusGatewayTimeout, "cancelled", "Request ended before the refresh finished")
		case errors.As(err, &fe):
			writeError(c, http.StatusBadGateway, string(fe.Type), err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(c, http.StatusGatewayTimeout, string(fetcherrors.ErrorTypeTimeout), err.Error())
		default:
			writeError(c, http.StatusBadGateway, "refresh_failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{SnapshotID: snap.ID, Status: r.refresher.Status()})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.history == nil {
		writeError(c, http.StatusNotFound, "runlog_disabled", "Run log is disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := r.history.Recent(c.Request.Context(), limit)
	if err != nil {
		logger := logging.FromContext(c.Request.Context())
		logger.Error().Err(err).Msg("Failed to read run log")
		writeError(c, http.StatusInternalServerError, "runlog_error", "Failed to read run log")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
