package model

import (
	"slices"
	"time"

	"termcal/internal/calendar"
)

// Event is a single concrete calendar entry as shown on the grid, i.e. one
// occurrence after recurrence expansion and timezone normalisation.
//
// Empty strings mean "not set". A zero Start or End means the feed did not
// carry that bound; such events never cover any date.
type Event struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey distinguishes occurrences of the same recurring UID.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	URL         string
	Status      Status

	AllDay bool

	// Start / End are in the display timezone. For all-day events End is
	// midnight of the last covered day, not the exclusive DTEND.
	Start time.Time
	End   time.Time
}

func (e Event) HasStart() bool { return !e.Start.IsZero() }
func (e Event) HasEnd() bool   { return !e.End.IsZero() }

// Covers reports whether d falls within the event's inclusive start-date /
// end-date range. Events missing either bound cover nothing.
func (e Event) Covers(d calendar.Date) bool {
	if !e.HasStart() || !e.HasEnd() {
		return false
	}
	return !calendar.DateOf(e.Start).After(d) && !calendar.DateOf(e.End).Before(d)
}

// InRange reports whether the event starts within [first, last], inclusive.
// Events without a start are never in range.
func (e Event) InRange(first, last calendar.Date) bool {
	if !e.HasStart() {
		return false
	}
	start := calendar.DateOf(e.Start)
	return !start.Before(first) && !start.After(last)
}

// ShortDescription is the one-line label used in grid cells.
func (e Event) ShortDescription() string {
	if e.Summary == "" {
		return "No summary"
	}
	return e.Summary
}

// SortByStart orders events by start time, ascending. Events without a start
// have the zero time and therefore come first; ties keep feed order.
func SortByStart(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return a.Start.Compare(b.Start)
	})
}
