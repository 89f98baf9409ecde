package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMonth is returned by ValidateMonth for out-of-range input.
var ErrInvalidMonth = errors.New("calendar: invalid year/month")

// Grid is the ordered list of dates shown for one month. Rows run Sunday to
// Saturday, so len(Grid) is always a multiple of 7.
type Grid []Date

// Weeks splits the grid into rows of 7 days.
func (g Grid) Weeks() [][]Date {
	weeks := make([][]Date, 0, len(g)/7)
	for i := 0; i+7 <= len(g); i += 7 {
		weeks = append(weeks, g[i:i+7])
	}
	return weeks
}

// ValidateMonth checks the preconditions of the grid functions. Callers that
// accept user input (flags, query strings) should run it first; the grid
// functions themselves panic on invalid input.
func ValidateMonth(year int, month time.Month) error {
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidMonth, year)
	}
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidMonth, month)
	}
	return nil
}

func mustValidMonth(year int, month time.Month) {
	if err := ValidateMonth(year, month); err != nil {
		panic(err)
	}
}

// FirstDayOfMonth returns the 1st of the given month.
func FirstDayOfMonth(year int, month time.Month) Date {
	mustValidMonth(year, month)
	return Date{Year: year, Month: month, Day: 1}
}

// LastDayOfMonth returns the last valid day of the given month. Day 0 of the
// following month normalises to it, which also covers December and leap years.
func LastDayOfMonth(year int, month time.Month) Date {
	mustValidMonth(year, month)
	return NewDate(year, month+1, 0)
}

// MonthRange returns the first and last day of the month.
func MonthRange(year int, month time.Month) (first, last Date) {
	return FirstDayOfMonth(year, month), LastDayOfMonth(year, month)
}

// InitialGridDate returns the first date shown in the month grid.
//
// Display weeks start on Sunday while ISO weeks start on Monday, so the Sunday
// that opens the display week holding the 1st is the Sunday (ISO day 7) of the
// previous ISO week. When the 1st is itself a Sunday the grid starts on it.
func InitialGridDate(year int, month time.Month) Date {
	first := FirstDayOfMonth(year, month)
	if first.Weekday() == time.Sunday {
		return first
	}

	isoYear, week := first.ISOWeek()
	week--
	if week == 0 {
		isoYear--
		week = ISOWeeksInYear(isoYear)
	}
	return FromISOWeek(isoYear, week, time.Sunday)
}

// FinalGridDate returns the last date shown in the month grid: the Saturday of
// the ISO week holding the last day, or of the following ISO week when the
// last day is a Sunday (ISO weeks end on Sunday, display weeks on Saturday).
func FinalGridDate(year int, month time.Month) Date {
	last := LastDayOfMonth(year, month)

	isoYear, week := last.ISOWeek()
	if last.Weekday() == time.Sunday {
		week++
		if week > ISOWeeksInYear(isoYear) {
			isoYear++
			week = 1
		}
	}
	return FromISOWeek(isoYear, week, time.Saturday)
}

// MonthGrid returns every date from InitialGridDate to FinalGridDate inclusive.
func MonthGrid(year int, month time.Month) Grid {
	start := InitialGridDate(year, month)
	end := FinalGridDate(year, month)

	grid := make(Grid, 0, start.DaysUntil(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		grid = append(grid, d)
	}
	return grid
}

// FromISOWeek returns the date of the given weekday in ISO week `week` of
// ISO year `isoYear`. Sunday is treated as ISO day 7, the last day of the week.
func FromISOWeek(isoYear, week int, day time.Weekday) Date {
	// January 4th is always in ISO week 1.
	jan4 := Date{Year: isoYear, Month: time.January, Day: 4}
	week1Monday := jan4.AddDays(-(isoWeekday(jan4.Weekday()) - 1))
	return week1Monday.AddDays((week-1)*7 + isoWeekday(day) - 1)
}

// ISOWeeksInYear returns 52 or 53, the number of ISO weeks in isoYear.
func ISOWeeksInYear(isoYear int) int {
	// December 28th is always in the last ISO week of its year.
	_, week := Date{Year: isoYear, Month: time.December, Day: 28}.ISOWeek()
	return week
}

// isoWeekday maps time.Weekday onto ISO numbering, Monday=1 .. Sunday=7.
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// WeekdayNames lists weekday names in display order.
func WeekdayNames(startSunday bool) []string {
	names := make([]string, 0, 7)
	first := time.Monday
	if startSunday {
		first = time.Sunday
	}
	for i := range 7 {
		names = append(names, ((first + time.Weekday(i)) % 7).String())
	}
	return names
}
