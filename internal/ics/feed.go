package ics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"termcal/internal/calendar"
	appLog "termcal/internal/log"
	"termcal/internal/model"
)

// Feed is the event source for one subscribed ICS URL: every call downloads
// the feed (conditionally), parses it and expands recurrences for the
// requested days.
type Feed struct {
	src     Source
	fetcher *Fetcher
	loc     *time.Location
	maxOcc  int
}

// NewFeed binds src to a fetcher. Events are normalised into loc (time.Local
// if nil). maxOccurrences <= 0 uses the expansion default.
func NewFeed(src Source, fetcher *Fetcher, loc *time.Location, maxOccurrences int) *Feed {
	if loc == nil {
		loc = time.Local
	}
	if src.ID == "" {
		src.ID = redactURL(src.URL)
	}
	src.URL = NormalizeURL(src.URL)
	return &Feed{
		src:     src,
		fetcher: fetcher,
		loc:     loc,
		maxOcc:  maxOccurrences,
	}
}

// FetchEvents returns every occurrence overlapping the days start..end
// (both inclusive, in the feed's display location).
func (f *Feed) FetchEvents(ctx context.Context, start, end calendar.Date) ([]model.Event, error) {
	res, err := f.fetcher.Fetch(ctx, f.src)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(f.src, res.Body)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation:        f.loc,
		RangeStart:             start.In(f.loc),
		RangeEnd:               end.AddDays(1).In(f.loc).Add(-time.Nanosecond),
		MaxOccurrencesPerEvent: f.maxOcc,
	})
	if err != nil {
		return nil, fmt.Errorf("ics: expand %s..%s: %w", start, end, err)
	}

	appLog.Info("ics feed resolved",
		"id", f.src.ID,
		"from_cache", res.FromCache,
		"vevents", len(parsed),
		"events", len(expanded.Events),
		"truncated", len(expanded.TruncatedEvents),
	)
	return expanded.Events, nil
}

// NormalizeURL rewrites webcal:// subscription links to https://.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if rest, ok := strings.CutPrefix(u, "webcal://"); ok {
		return "https://" + rest
	}
	if rest, ok := strings.CutPrefix(u, "webcals://"); ok {
		return "https://" + rest
	}
	return u
}
