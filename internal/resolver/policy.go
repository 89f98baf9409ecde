package resolver

import (
	"fmt"
	"strings"
)

// Policy selects how much of the feed one fetch covers.
type Policy int

const (
	// PolicyWide fetches ±wideDays around today once per bucket and filters
	// months in memory by start date.
	PolicyWide Policy = iota
	// PolicyNarrow fetches exactly one month per bucket.
	PolicyNarrow
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wide":
		return PolicyWide, nil
	case "narrow":
		return PolicyNarrow, nil
	default:
		return PolicyWide, fmt.Errorf("resolver: unknown policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyWide:
		return "wide"
	case PolicyNarrow:
		return "narrow"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}
