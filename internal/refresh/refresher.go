package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rcourtman/pulse-fleet/internal/aggregate"
	"github.com/rcourtman/pulse-fleet/internal/config"
	fetcherrors "github.com/rcourtman/pulse-fleet/internal/errors"
	"github.com/rcourtman/pulse-fleet/internal/logging"
	"github.com/rcourtman/pulse-fleet/internal/metrics"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
	"github.com/rcourtman/pulse-fleet/internal/source"
)

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("refresher closed")

// Options configures a Refresher.
type Options struct {
	Fetcher      source.Fetcher
	Profile      config.Profile
	Interval     time.Duration
	FetchTimeout time.Duration
}

// Refresher owns the current snapshot. At most one refresh runs at a time;
// concurrent callers join the one in flight and share its result.
type Refresher struct {
	fetcher  source.Fetcher
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	// lifecycle context; in-flight work derives from it so Close cancels it
	ctx    context.Context
	cancel context.CancelFunc

	group   singleflight.Group
	current atomic.Pointer[Snapshot]
	profile atomic.Pointer[config.Profile]

	mu          sync.Mutex
	inFlight    bool
	lastErr     error
	lastAttempt time.Time
	lastSuccess time.Time
	subscribers []func(*Snapshot)
	onAttempt   []func(Attempt)
}

// New creates a refresher. It does nothing until Refresh or Run is called.
func New(opts Options) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Profile.Sheets == nil {
		opts.Profile = config.DefaultProfile()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		fetcher:  opts.Fetcher,
		interval: opts.Interval,
		timeout:  opts.FetchTimeout,
		logger:   logging.New("refresh"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	p := opts.Profile
	r.profile.Store(&p)
	return r
}

// Current returns the latest snapshot, or nil before the first success.
func (r *Refresher) Current() *Snapshot {
	return r.current.Load()
}

// Seed installs a snapshot restored from elsewhere (the cache) if no
// snapshot has been produced yet.
func (r *Refresher) Seed(s *Snapshot) bool {
	if s == nil {
		return false
	}
	return r.current.CompareAndSwap(nil, s)
}

// Profile returns the profile used by the next refresh.
func (r *Refresher) Profile() config.Profile {
	return *r.profile.Load()
}

// SetProfile replaces the profile for subsequent refreshes. A refresh
// already in flight keeps the profile it started with.
func (r *Refresher) SetProfile(p config.Profile) {
	r.profile.Store(&p)
	r.logger.Info().Msg("Sheet profile replaced")
}

// Subscribe registers fn to receive every new snapshot.
func (r *Refresher) Subscribe(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// OnAttempt registers fn to receive every finished attempt, failed or not.
func (r *Refresher) OnAttempt(fn func(Attempt)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAttempt = append(r.onAttempt, fn)
}

// Status reports loading and error state.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	st := Status{
		Loading:    snap == nil && (r.inFlight || r.lastAttempt.IsZero()),
		Refreshing: r.inFlight,
		Interval:   r.interval.String(),
	}
	if snap != nil {
		st.SnapshotID = snap.ID
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
		st.AuthError = fetcherrors.IsAuthError(r.lastErr)
		var fe *fetcherrors.FetchError
		if errors.As(r.lastErr, &fe) {
			st.ErrorType = string(fe.Type)
		}
	}
	if !r.lastAttempt.IsZero() {
		t := r.lastAttempt
		st.LastAttempt = &t
	}
	if !r.lastSuccess.IsZero() {
		t := r.lastSuccess
		st.LastSuccess = &t
	}
	return st
}

// Refresh runs a refresh cycle, or joins the one in flight. ctx bounds how
// long this caller waits; the cycle itself runs under the refresher's
// lifecycle and FetchTimeout so an impatient caller does not abort it for
// others.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	if r.ctx.Err() != nil {
		return nil, ErrClosed
	}

	ch := r.group.DoChan("refresh", func() (any, error) {
		return r.cycle()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run refreshes immediately and then every interval until ctx is done.
// Failures are logged; the previous snapshot stays in place.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error().Err(err).Msg("Initial refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.ctx.Done():
			return ErrClosed
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
					return err
				}
				r.logger.Error().Err(err).Msg("Scheduled refresh failed")
			}
		}
	}
}

// Close cancels any in-flight refresh and rejects new ones.
func (r *Refresher) Close() {
	r.cancel()
}

func (r *Refresher) cycle() (*Snapshot, error) {
	started := r.now()
	r.mu.Lock()
	r.inFlight = true
	r.mu.Unlock()
	metrics.RefreshInFlight.Set(1)

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	profile := r.Profile()
	tables, err := r.fetchAll(ctx, profile.Refs())

	var snap *Snapshot
	if err == nil {
		snap = r.build(tables, profile, started)
	}
	r.finish(started, snap, err)
	return snap, err
}

// fetchAll fetches every sheet concurrently. The first failure cancels the
// rest and fails the whole cycle; no partial tables are returned.
func (r *Refresher) fetchAll(ctx context.Context, refs []sheet.Ref) (aggregate.Tables, error) {
	results := make([]sheet.Table, len(refs))
	g, gctx := errgroup.WithContext(ctx)

	for i, ref := range refs {
		g.Go(func() error {
			start := time.Now()
			table, err := r.fetcher.Fetch(gctx, ref)
			metrics.RecordFetch(string(ref.Kind), err, time.Since(start))
			if err != nil {
				return err
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if r.ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return nil, err
	}

	tables := make(aggregate.Tables, len(refs))
	for i, ref := range refs {
		tables[ref.Kind] = results[i]
	}
	return tables, nil
}

func (r *Refresher) build(tables aggregate.Tables, profile config.Profile, started time.Time) *Snapshot {
	result := aggregate.Run(tables, profile.Options())

	rows := make(map[sheet.Kind]int, len(tables))
	for kind, t := range tables {
		rows[kind] = t.Len()
	}
	metrics.SetSheetStats(string(sheet.KindMisalignment), rows[sheet.KindMisalignment], result.Misalignment.SkippedRows)
	metrics.SetSheetStats(string(sheet.KindAlerts), rows[sheet.KindAlerts], result.Alerts.SkippedRows)
	metrics.SetSheetStats(string(sheet.KindIssues), rows[sheet.KindIssues], result.Issues.SkippedRows)

	now := r.now()
	return &Snapshot{
		ID:          ulid.Make().String(),
		GeneratedAt: now.UTC(),
		Duration:    now.Sub(started),
		Rows:        rows,
		Result:      result,
	}
}

func (r *Refresher) finish(started time.Time, snap *Snapshot, err error) {
	finished := r.now()
	attempt := Attempt{
		ID:        ulid.Make().String(),
		StartedAt: started,
		Duration:  finished.Sub(started),
		Err:       err,
		Snapshot:  snap,
	}
	metrics.RecordRefresh(err, attempt.Duration, finished)

	r.mu.Lock()
	r.inFlight = false
	r.lastAttempt = finished
	r.lastErr = err
	if snap != nil {
		r.current.Store(snap)
		r.lastSuccess = finished
	}
	subscribers := append([]func(*Snapshot){}, r.subscribers...)
	hooks := append([]func(Attempt){}, r.onAttempt...)
	r.mu.Unlock()
	metrics.RefreshInFlight.Set(0)

	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("sheet", fetcherrors.SheetOf(err)).
			Dur("elapsed", attempt.Duration).
			Msg("Refresh failed, keeping previous snapshot")
	} else {
		r.logger.Info().
			Str("snapshot", snap.ID).
			Int("misalignment_rows", snap.Rows[sheet.KindMisalignment]).
			Int("alert_rows", snap.Rows[sheet.KindAlerts]).
			Int("issue_rows", snap.Rows[sheet.KindIssues]).
			Dur("elapsed", attempt.Duration).
			Msg("Refresh complete")
	}

	for _, fn := range hooks {
		fn(attempt)
	}
	if snap != nil {
		for _, fn := range subscribers {
			fn(snap)
		}
	}
}
