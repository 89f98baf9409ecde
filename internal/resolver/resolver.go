// Package resolver answers "which events belong to this month / this day"
// on top of a slow event source, memoising fetches per TTL bucket.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"termcal/internal/cache"
	"termcal/internal/calendar"
	appLog "termcal/internal/log"
	"termcal/internal/model"
)

const DefaultWideDays = 365

// Source fetches every event overlapping [start, end]. The feed URL is bound
// into the implementation.
type Source interface {
	FetchEvents(ctx context.Context, start, end calendar.Date) ([]model.Event, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, start, end calendar.Date) ([]model.Event, error)

func (f SourceFunc) FetchEvents(ctx context.Context, start, end calendar.Date) ([]model.Event, error) {
	return f(ctx, start, end)
}

// FetchError is returned when the source could not produce events for the
// requested window. Nothing is cached for that window.
type FetchError struct {
	Start, End calendar.Date
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("resolver: fetch events %s..%s: %v", e.Start, e.End, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err (or anything it wraps) is a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// scope identifies one cached fetch. Under PolicyWide every month shares the
// zero scope.
type scope struct {
	year  int
	month time.Month
}

// Stats are cumulative counters, for logging.
type Stats struct {
	Fetches  int64
	Hits     int64
	Failures int64
}

// Resolver is safe for concurrent use.
type Resolver struct {
	src      Source
	policy   Policy
	wideDays int
	now      func() time.Time
	loc      *time.Location

	cache *cache.TTL[scope, []model.Event]
	group singleflight.Group

	fetches  atomic.Int64
	hits     atomic.Int64
	failures atomic.Int64
}

type Option func(*options)

type options struct {
	policy   Policy
	window   time.Duration
	wideDays int
	capacity int
	now      func() time.Time
	loc      *time.Location
}

// WithPolicy selects wide or narrow fetch granularity.
func WithPolicy(p Policy) Option { return func(o *options) { o.policy = p } }

// WithWindow sets the TTL bucket width.
func WithWindow(d time.Duration) Option { return func(o *options) { o.window = d } }

// WithWideDays sets how many days around today PolicyWide fetches.
func WithWideDays(n int) Option { return func(o *options) { o.wideDays = n } }

// WithCapacity bounds the number of cached scopes.
func WithCapacity(n int) Option { return func(o *options) { o.capacity = n } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLocation sets the zone in which "today" is computed for PolicyWide.
func WithLocation(loc *time.Location) Option { return func(o *options) { o.loc = loc } }

func New(src Source, opts ...Option) *Resolver {
	o := options{
		policy:   PolicyWide,
		window:   cache.DefaultWindow,
		wideDays: DefaultWideDays,
		capacity: cache.DefaultCapacity,
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wideDays <= 0 {
		o.wideDays = DefaultWideDays
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.now == nil {
		o.now = time.Now
	}

	return &Resolver{
		src:      src,
		policy:   o.policy,
		wideDays: o.wideDays,
		now:      o.now,
		loc:      o.loc,
		cache:    cache.New[scope, []model.Event](o.capacity, cache.Bucketer{Window: o.window, Now: o.now}),
	}
}

// EventsForMonth returns the events that belong to the given month.
//
// Under PolicyWide this is every event of the cached ±wideDays fetch whose
// start date lies within the month's first..last day. Under PolicyNarrow it is
// whatever the source returned for exactly that month.
func (r *Resolver) EventsForMonth(ctx context.Context, year int, month time.Month) ([]model.Event, error) {
	if err := calendar.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	first, last := calendar.MonthRange(year, month)

	switch r.policy {
	case PolicyNarrow:
		events, err := r.load(ctx, scope{year: year, month: month}, first, last)
		if err != nil {
			return nil, err
		}
		return slices.Clone(events), nil

	case PolicyWide:
		today := calendar.DateOf(r.now().In(r.loc))
		events, err := r.load(ctx, scope{}, today.AddDays(-r.wideDays), today.AddDays(r.wideDays))
		if err != nil {
			return nil, err
		}
		out := make([]model.Event, 0)
		for _, e := range events {
			if e.InRange(first, last) {
				out = append(out, e)
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("resolver: unknown policy %d", r.policy)
	}
}

// EventsForDate returns the events covering d, sorted by start time.
func (r *Resolver) EventsForDate(ctx context.Context, d calendar.Date) ([]model.Event, error) {
	monthEvents, err := r.EventsForMonth(ctx, d.Year, d.Month)
	if err != nil {
		return nil, err
	}

	out := make([]model.Event, 0)
	for _, e := range monthEvents {
		if e.Covers(d) {
			out = append(out, e)
		}
	}
	model.SortByStart(out)
	return out, nil
}

// EventsForGrid resolves every date of a month grid. All dates of one month
// share a single cached fetch.
func (r *Resolver) EventsForGrid(ctx context.Context, grid calendar.Grid) (map[calendar.Date][]model.Event, error) {
	out := make(map[calendar.Date][]model.Event, len(grid))
	for _, d := range grid {
		events, err := r.EventsForDate(ctx, d)
		if err != nil {
			return nil, err
		}
		out[d] = events
	}
	return out, nil
}

func (r *Resolver) Stats() Stats {
	return Stats{
		Fetches:  r.fetches.Load(),
		Hits:     r.hits.Load(),
		Failures: r.failures.Load(),
	}
}

// load returns the cached list for key in the current bucket, fetching it at
// most once per (key, bucket) even under concurrent callers. The returned
// slice is shared with the cache and must not be modified.
func (r *Resolver) load(ctx context.Context, key scope, start, end calendar.Date) ([]model.Event, error) {
	gen := r.cache.Bucket()
	if events, ok := r.cache.Get(key); ok {
		r.hits.Add(1)
		appLog.Debug("resolver cache hit", "scope", scopeName(key), "generation", gen)
		return events, nil
	}

	flightKey := fmt.Sprintf("%s@%d", scopeName(key), gen)
	// The shared fetch must not die with whichever caller started it; the
	// source's own timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey, func() (any, error) {
		// A caller that lost the race may find the entry already filled.
		if events, ok := r.cache.Get(key); ok {
			return events, nil
		}

		r.fetches.Add(1)
		appLog.Info("resolver fetch", "scope", scopeName(key), "start", start, "end", end, "generation", gen)

		events, err := r.src.FetchEvents(fetchCtx, start, end)
		if err != nil {
			r.failures.Add(1)
			return nil, &FetchError{Start: start, End: end, Err: err}
		}
		if events == nil {
			events = []model.Event{}
		}
		r.cache.SetAt(key, gen, events)
		return events, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			appLog.Error("resolver fetch failed", res.Err, "scope", scopeName(key), "shared", res.Shared)
			return nil, res.Err
		}
		return res.Val.([]model.Event), nil
	}
}

func scopeName(s scope) string {
	if s == (scope{}) {
		return "all"
	}
	return fmt.Sprintf("%04d-%02d", s.year, s.month)
}
