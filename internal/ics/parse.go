package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/sosodev/duration"

	appLog "termcal/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT as produced by
// the parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Status      string
	URL         string

	// Start / End are zero when the VEVENT lacks the property. For all-day
	// events End is the exclusive DTEND (the day after the last covered day).
	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT is an override for a recurring instance
}

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
//   - VTIMEZONE/TZID handling is left to golang-ical for timed values.
//   - All-day events are detected from the DTSTART value format.
//   - RRULE/EXDATE/RECURRENCE-ID are recorded, not expanded; see
//     ExpandOccurrences.
//   - A VEVENT without UID gets a random one so that it can still be shown.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return nil, errors.New("ics: body is not an iCalendar document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "id", src.ID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		out.UID = uuid.NewString()
	}

	if seq := propValue(ve, ical.ComponentPropertySequence); seq != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(seq)); err == nil {
			out.Seq = n
		}
	}

	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.Status = propValue(ve, ical.ComponentPropertyStatus)
	out.URL = propValue(ve, "URL")

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart != nil {
		out.AllDay = isDateValue(dtStart)
	}

	switch {
	case dtStart == nil:
		// No start: kept, but it will never cover a date.
	case out.AllDay:
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, fmt.Errorf("DTSTART %q: %w", dtStart.Value, err)
		}
		out.Start = start
		if end, err := ve.GetAllDayEndAt(); err == nil {
			out.End = end
		}
	default:
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("DTSTART %q: %w", dtStart.Value, err)
		}
		out.Start = start
		if end, err := ve.GetEndAt(); err == nil {
			out.End = end
		}
	}

	if out.End.IsZero() && !out.Start.IsZero() {
		if d := propValue(ve, "DURATION"); d != "" {
			if dur, err := parseDuration(d); err == nil {
				out.End = out.Start.Add(dur)
			}
		} else if out.AllDay {
			// RFC 5545: a DATE DTSTART without DTEND lasts one day.
			out.End = out.Start.AddDate(0, 0, 1)
		}
	}

	out.RawRRule = propValue(ve, ical.ComponentPropertyRrule)

	// EXDATE can appear multiple times, each with a comma separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTimeIn(part, tzidLocation(p.ICalParameters)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseICSTimeIn(rid.Value, tzidLocation(rid.ICalParameters)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// isDateValue reports whether a DTSTART carries a DATE (all-day) value:
// either VALUE=DATE or a value without a time part.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzidLocation(params map[string][]string) *time.Location {
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return time.Local
}

// parseICSTimeIn parses DATE, floating DATE-TIME (in loc) and UTC DATE-TIME
// values. EXDATE lists and RECURRENCE-ID have no typed getter in golang-ical.
func parseICSTimeIn(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

// parseDuration parses an RFC 5545 DURATION such as "PT1H30M" or "P2D".
// A value must end in a unit designator, so "P", "PT" and "-P" are rejected.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "+")
	body := strings.TrimPrefix(v, "-")
	if body == "" || !strings.ContainsAny(body[len(body)-1:], "WDHMS") {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	d, err := duration.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d.ToTimeDuration(), nil
}
