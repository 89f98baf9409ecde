package model

import "strings"

// Status is the iCalendar STATUS of an event.
type Status int

const (
	StatusUnknown Status = iota
	StatusConfirmed
	StatusTentative
	StatusCancelled
)

// ParseStatus maps a STATUS property value onto a Status. Anything that is
// not a VEVENT status is StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CONFIRMED":
		return StatusConfirmed
	case "TENTATIVE":
		return StatusTentative
	case "CANCELLED":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusTentative:
		return "TENTATIVE"
	case StatusCancelled:
		return "CANCELLED"
	case StatusUnknown:
		return ""
	default:
		return ""
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
