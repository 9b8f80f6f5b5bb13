package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rcourtman/pulse-fleet/internal/api"
	"github.com/rcourtman/pulse-fleet/internal/cache"
	"github.com/rcourtman/pulse-fleet/internal/config"
	"github.com/rcourtman/pulse-fleet/internal/refresh"
	"github.com/rcourtman/pulse-fleet/internal/runlog"
	"github.com/rcourtman/pulse-fleet/internal/source"
	"github.com/rcourtman/pulse-fleet/internal/websocket"
)

const (
	hookTimeout       = 5 * time.Second
	retentionInterval = time.Hour
	shutdownTimeout   = 30 * time.Second
)

// app holds the long-lived components of the server.
type app struct {
	cfg       *config.Config
	src       source.Source
	refresher *refresh.Refresher
	cache     *cache.Cache
	runs      *runlog.Store // nil when the run log is disabled
	hub       *websocket.Hub
	watcher   *config.ProfileWatcher
	router    *api.Router
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.init(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	cfg := a.cfg

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	if a.src, err = source.New(cfg); err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	a.refresher = refresh.New(refresh.Options{
		Fetcher:      a.src,
		Profile:      profile,
		Interval:     cfg.RefreshInterval,
		FetchTimeout: cfg.FetchTimeout,
	})

	if a.cache, err = cache.New(cache.Config{RedisURL: cfg.RedisURL, DefaultTTL: cfg.CacheTTL}); err != nil {
		return fmt.Errorf("create snapshot cache: %w", err)
	}

	if cfg.RunLogPath != "" {
		if a.runs, err = runlog.Open(cfg.RunLogPath); err != nil {
			return err
		}
	}

	if cfg.ProfilePath != "" {
		if a.watcher, err = config.NewProfileWatcher(cfg.ProfilePath, a.refresher.SetProfile); err != nil {
			return fmt.Errorf("create profile watcher: %w", err)
		}
	}

	a.hub = websocket.NewHub(func() (any, bool) {
		snap := a.refresher.Current()
		return snap, snap != nil
	})
	a.hub.SetAllowedOrigins(cfg.AllowedOrigins)

	a.refresher.Subscribe(a.publish)
	a.refresher.OnAttempt(a.recordAttempt)

	opts := []api.Option{api.WithHub(a.hub)}
	if a.runs != nil {
		opts = append(opts, api.WithHistory(a.runs))
	}
	a.router = api.NewRouter(a.refresher, opts...)
	return nil
}

// publish pushes a new snapshot to live clients and the cache.
func (a *app) publish(snap *refresh.Snapshot) {
	a.hub.BroadcastSnapshot(snap)

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := a.cache.Set(ctx, cache.SnapshotKey, snap, a.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Str("snapshot", snap.ID).Msg("Failed to cache snapshot")
	}
}

// recordAttempt logs every attempt to the run log and tells live clients
// about failures.
func (a *app) recordAttempt(at refresh.Attempt) {
	if errors.Is(at.Err, refresh.ErrClosed) {
		return
	}
	if at.Err != nil {
		a.hub.BroadcastRefreshFailed(a.refresher.Status())
	}
	if a.runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := a.runs.Record(ctx, runEntry(at)); err != nil {
		log.Warn().Err(err).Str("attempt", at.ID).Msg("Failed to record refresh attempt")
	}
}

func runEntry(at refresh.Attempt) runlog.Entry {
	e := runlog.Entry{
		ID:        at.ID,
		StartedAt: at.StartedAt,
		Duration:  at.Duration,
		OK:        at.Err == nil,
	}
	if at.Err != nil {
		e.Error = at.Err.Error()
	}
	if at.Snapshot != nil {
		e.SnapshotID = at.Snapshot.ID
		e.Rows = at.Snapshot.Rows
	}
	return e
}

// start seeds the refresher from the cache and launches the background
// loops. They stop when ctx is done.
func (a *app) start(ctx context.Context) {
	var cached refresh.Snapshot
	if a.cache.Get(ctx, cache.SnapshotKey, &cached) && a.refresher.Seed(&cached) {
		log.Info().
			Str("snapshot", cached.ID).
			Time("generated_at", cached.GeneratedAt).
			Msg("Serving cached snapshot until the first refresh completes")
	}

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start profile watcher, profile changes will require a restart")
		}
	}

	go a.hub.Run(ctx)
	go func() {
		if err := a.refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, refresh.ErrClosed) {
			log.Error().Err(err).Msg("Refresh loop stopped")
		}
	}()
	if a.runs != nil {
		go a.runs.RunRetention(ctx, a.cfg.RunLogRetention, retentionInterval)
	}
}

// reloadProfile re-reads the profile file on SIGHUP.
func (a *app) reloadProfile() {
	if a.cfg.ProfilePath == "" {
		log.Info().Msg("No profile file configured, nothing to reload")
		return
	}
	profile, err := config.LoadProfile(a.cfg.ProfilePath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload sheet profile, keeping the current one")
		return
	}
	a.refresher.SetProfile(profile)
}

func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.refresher != nil {
		a.refresher.Close()
	}
	if a.src != nil {
		if err := a.src.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close source")
		}
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run log")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close snapshot cache")
		}
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", Version).Str("source", string(cfg.Source)).Msg("Starting Pulse Fleet server")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.MetricsAddr != "" {
		if _, err := startMetricsServer(ctx, cfg.MetricsAddr); err != nil {
			return err
		}
	}

	a.start(ctx)

	// ReadHeaderTimeout rather than ReadTimeout so upgraded WebSocket
	// connections do not inherit a read deadline.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Server listening")
		serveErr <- srv.ListenAndServe()
	}()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case <-reload:
			log.Info().Msg("Received SIGHUP, reloading sheet profile")
			a.reloadProfile()

		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("http server: %w", err)

		case <-ctx.Done():
			log.Info().Msg("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server shutdown error")
			}
			log.Info().Msg("Server stopped")
			return nil
		}
	}
}
