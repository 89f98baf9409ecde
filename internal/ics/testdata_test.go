package ics

import "strings"

// sampleICS exercises timed, all-day, DURATION, RRULE+EXDATE, an override and
// a VEVENT without DTSTART.
var sampleICS = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//termcal//test//EN",
	"BEGIN:VEVENT",
	"UID:timed-1",
	"DTSTAMP:20240301T000000Z",
	"DTSTART:20240310T090000Z",
	"DTEND:20240310T100000Z",
	"SUMMARY:Standup",
	"DESCRIPTION:Daily sync",
	"STATUS:CONFIRMED",
	"URL:https://example.com/standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:allday-1",
	"DTSTART;VALUE=DATE:20240315",
	"DTEND;VALUE=DATE:20240317",
	"SUMMARY:Conference",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTART:20240320T120000Z",
	"DURATION:PT90M",
	"SUMMARY:No UID",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"DTSTART:20240304T080000Z",
	"DTEND:20240304T083000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20240311T080000Z",
	"SUMMARY:Gym",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"RECURRENCE-ID:20240318T080000Z",
	"DTSTART:20240318T180000Z",
	"DTEND:20240318T183000Z",
	"SUMMARY:Gym (evening)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:nostart",
	"SUMMARY:Floating note",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")
