package api

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rcourtman/pulse-fleet/internal/logging"
	"github.com/rcourtman/pulse-fleet/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// APIError is the body of every error response.
type APIError struct {
	ErrorMessage string `json:"error"`
	Code         string `json:"code,omitempty"`
	StatusCode   int    `json:"status_code"`
	Timestamp    int64  `json:"timestamp"`
	RequestID    string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, &APIError{
		ErrorMessage: message,
		Code:         code,
		StatusCode:   status,
		Timestamp:    time.Now().Unix(),
		RequestID:    logging.GetRequestID(c.Request.Context()),
	})
}

// requestContext attaches a request ID (honoring an incoming header), logs
// the request, counts it and recovers panics.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, requestID := logging.WithRequestID(c.Request.Context(), strings.TrimSpace(c.GetHeader(requestIDHeader)))
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		defer func() {
			if err := recover(); err != nil {
				logger := logging.FromContext(ctx)
				logger.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered in API handler")
				writeError(c, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
			}

			status := c.Writer.Status()
			metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), status)

			logger := logging.FromContext(ctx)
			event := logger.Debug()
			if status >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Int("status", status).
				Dur("elapsed", time.Since(start)).
				Msg("Handled request")
		}()

		c.Next()
	}
}
