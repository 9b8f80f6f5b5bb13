// Package api serves the current snapshot and the refresher's state over
// HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rcourtman/pulse-fleet/internal/refresh"
	"github.com/rcourtman/pulse-fleet/internal/runlog"
	"github.com/rcourtman/pulse-fleet/internal/websocket"
)

// Refresher is the part of refresh.Refresher the API reads from.
type Refresher interface {
	Current() *refresh.Snapshot
	Status() refresh.Status
	Refresh(ctx context.Context) (*refresh.Snapshot, error)
}

// History lists recorded refresh attempts.
type History interface {
	Recent(ctx context.Context, limit int) ([]runlog.Entry, error)
}

// Router handles HTTP routing.
type Router struct {
	engine    *gin.Engine
	refresher Refresher
	history   History
	hub       *websocket.Hub
}

// Option configures optional parts of the router.
type Option func(*Router)

// WithHistory serves the run log at /api/refresh/history.
func WithHistory(h History) Option {
	return func(r *Router) { r.history = h }
}

// WithHub serves live updates at /ws.
func WithHub(hub *websocket.Hub) Option {
	return func(r *Router) { r.hub = hub }
}

// NewRouter creates the router.
func NewRouter(refresher Refresher, opts ...Option) *Router {
	r := &Router{
		engine:    gin.New(),
		refresher: refresher,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.Use(requestContext())

	r.engine.GET("/healthz", r.handleHealth)
	if r.hub != nil {
		r.engine.GET("/ws", gin.WrapF(r.hub.HandleWebSocket))
	}

	api := r.engine.Group("/api")
	{
		api.GET("/status", r.handleStatus)
		api.POST("/refresh", r.handleRefresh)
		api.GET("/refresh/history", r.handleHistory)

		api.GET("/snapshot", r.withSnapshot(func(s *refresh.Snapshot) any { return s }))
		api.GET("/misalignment", r.withSnapshot(func(s *refresh.Snapshot) any { return s.Misalignment }))
		api.GET("/alerts", r.withSnapshot(func(s *refresh.Snapshot) any { return s.Alerts }))
		api.GET("/issues", r.withSnapshot(func(s *refresh.Snapshot) any { return s.Issues }))
		api.GET("/summary", r.withSnapshot(func(s *refresh.Snapshot) any { return s.Summary() }))
		api.GET("/series", r.withSnapshot(func(s *refresh.Snapshot) any { return s.Series() }))
		api.GET("/clients", r.withSnapshot(func(s *refresh.Snapshot) any { return s.Clients() }))
	}

	r.engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "Not found")
	})
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}
