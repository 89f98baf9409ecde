package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"termcal/internal/calendar"
	appLog "termcal/internal/log"
	"termcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences are converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE expansion. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded events and truncation info.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete events within the
// configured range. It handles:
//
//   - single non-recurring events
//   - RRULE recurrence with EXDATE exceptions
//   - RECURRENCE-ID overrides
//   - all-day events, which are re-anchored at midnight in the display
//     location with an inclusive End
//
// Events that lack a start or an end are passed through untouched: they
// cannot be placed in the range and never cover a date.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("ics: expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID, keeping feed order.
	var order []string
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]model.Event, 0, len(events))
	for _, uid := range order {
		overrides := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, overrides, cfg)
			truncated = truncated || hitCap
			out = append(out, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("ics expand: occurrences truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.Start.IsZero() || ev.End.IsZero() {
		return []model.Event{toEvent(ev, ev.Start, ev.End, cfg.DisplayLocation)}, false
	}
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	start, end := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, start); ok {
		ev, start, end = o, o.Start, o.End
	}
	if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Event{toEvent(ev, start, end, cfg.DisplayLocation)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		appLog.Error("ics expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return expandSingleEvent(ev, overrides, cfg), false
	}
	opt.Dtstart = ev.Start

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("ics expand: invalid RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return expandSingleEvent(ev, overrides, cfg), false
	}

	set := rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)

	// Widen the lower bound by the duration so that an occurrence which
	// started before the range but is still running is kept.
	rangeStart := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(rangeStart, rangeEnd, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, occStart := range starts {
		base, start, end := ev, occStart, occStart.Add(dur)
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			base, start, end = o, o.Start, o.End
		}
		out = append(out, toEvent(base, start, end, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID is the same
// instant as start. When a feed carries several revisions of the same
// instance, the highest SEQUENCE wins; equal sequences keep the later one.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	var (
		best  ParsedEvent
		found bool
	)
	for _, ov := range overrides {
		if ov.Recurrence == nil || !ov.Recurrence.Equal(start) {
			continue
		}
		if !found || ov.Seq >= best.Seq {
			best, found = ov, true
		}
	}
	return best, found
}

// toEvent converts a (possibly overridden) ParsedEvent with a concrete
// start/end into a model.Event in displayLoc.
func toEvent(ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.Event {
	out := model.Event{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		URL:         ev.URL,
		Status:      model.ParseStatus(ev.Status),
		AllDay:      ev.AllDay,
	}

	switch {
	case ev.AllDay && !start.IsZero():
		// All-day values are calendar dates, not instants: keep the date and
		// turn the exclusive DTEND into the last covered day.
		first := calendar.DateOf(start)
		last := first
		if !end.IsZero() {
			if endDay := calendar.DateOf(end).AddDays(-1); endDay.After(first) {
				last = endDay
			}
		}
		out.Start = first.In(displayLoc)
		out.End = last.In(displayLoc)
	default:
		if !start.IsZero() {
			out.Start = start.In(displayLoc)
		}
		if !end.IsZero() {
			out.End = end.In(displayLoc)
		}
	}

	out.InstanceKey = out.UID
	if !out.Start.IsZero() {
		out.InstanceKey = fmt.Sprintf("%s@%s", out.UID, out.Start.Format(time.RFC3339))
	}
	return out
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
