// Package render draws a month grid with its events for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"termcal/internal/calendar"
	"termcal/internal/model"
)

const (
	DefaultCellWidth = 14
	minCellWidth     = 6
)

// MonthView is everything needed to draw one month.
type MonthView struct {
	Year  int
	Month time.Month
	// Title is shown next to the month name, typically the feed name.
	Title string

	Grid   calendar.Grid
	Events map[calendar.Date][]model.Event
	Today  calendar.Date

	// MaxEvents is the number of event lines per cell; extra events are
	// summarised as "+N more".
	MaxEvents int
	// CellWidth is the width of one day column, borders excluded.
	CellWidth int

	// Renderer controls color output. Nil uses lipgloss' default renderer,
	// which strips colors when stdout is not a terminal.
	Renderer *lipgloss.Renderer
}

type styles struct {
	title, weekday, day, outside, today, weekend, event, more, cell lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, width int) styles {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1),
		weekday: r.NewStyle().Bold(true).Width(width).Foreground(lipgloss.Color("245")),
		day:     r.NewStyle().Bold(true),
		outside: r.NewStyle().Foreground(lipgloss.Color("240")),
		today:   r.NewStyle().Bold(true).Reverse(true),
		weekend: r.NewStyle().Bold(true).Foreground(lipgloss.Color("174")),
		event:   r.NewStyle().Foreground(lipgloss.Color("153")),
		more:    r.NewStyle().Italic(true).Foreground(lipgloss.Color("241")),
		cell:    r.NewStyle().Width(width).PaddingRight(1),
	}
}

// Month renders the grid as weekday header plus one row per display week.
func Month(v MonthView) string {
	width := v.CellWidth
	if width <= 0 {
		width = DefaultCellWidth
	}
	width = max(width, minCellWidth)
	maxEvents := max(v.MaxEvents, 0)

	st := newStyles(v.Renderer, width)

	title := fmt.Sprintf("%s %d", v.Month, v.Year)
	if v.Title != "" {
		title += " · " + v.Title
	}

	header := make([]string, 0, 7)
	for _, name := range calendar.WeekdayNames(true) {
		header = append(header, st.weekday.PaddingRight(1).Render(name[:3]))
	}

	rows := []string{st.title.Render(title), lipgloss.JoinHorizontal(lipgloss.Top, header...)}
	for _, week := range v.Grid.Weeks() {
		cells := make([]string, 0, len(week))
		for _, d := range week {
			cells = append(cells, renderCell(st, v, d, width, maxEvents))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCell(st styles, v MonthView, d calendar.Date, width, maxEvents int) string {
	dayStyle := st.day
	switch {
	case d == v.Today:
		dayStyle = st.today
	case d.Month != v.Month || d.Year != v.Year:
		dayStyle = st.outside
	case d.Weekday() == time.Saturday || d.Weekday() == time.Sunday:
		dayStyle = st.weekend
	}

	lines := []string{dayStyle.Render(fmt.Sprintf("%2d", d.Day))}

	events := v.Events[d]
	shown := events
	if len(shown) > maxEvents {
		// Leave the last line for the overflow marker.
		shown = shown[:max(maxEvents-1, 0)]
	}
	for _, e := range shown {
		lines = append(lines, st.event.Render(truncate(label(e), width-1)))
	}
	if hidden := len(events) - len(shown); hidden > 0 {
		lines = append(lines, st.more.Render(truncate(fmt.Sprintf("+%d more", hidden), width-1)))
	}
	for len(lines) < maxEvents+1 {
		lines = append(lines, "")
	}

	return st.cell.Render(strings.Join(lines, "\n"))
}

// label prefixes timed events with their local start time.
func label(e model.Event) string {
	if e.AllDay || !e.HasStart() {
		return e.ShortDescription()
	}
	return e.Start.Format("15:04") + " " + e.ShortDescription()
}

// truncate shortens s to at most width terminal cells, marking the cut with
// an ellipsis when there is room for one.
func truncate(s string, width int) string {
	if width <= 1 {
		return ansi.Truncate(s, width, "")
	}
	return ansi.Truncate(s, width, "…")
}
