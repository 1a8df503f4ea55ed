// Package modes defines the conversation modes offered by the chat UI.
package modes

import (
	"fmt"
	"strings"
)

// Mode selects the instruction template and sub-agent set of an agent.
type Mode int

const (
	Normal Mode = iota
	DeepResearch
)

// All returns every mode in display order.
func All() []Mode {
	return []Mode{Normal, DeepResearch}
}

// String returns the short identifier used in config, flags and metrics.
func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case DeepResearch:
		return "deep"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Label returns the name shown on the mode selector.
func (m Mode) Label() string {
	switch m {
	case Normal:
		return "Normal Mode"
	case DeepResearch:
		return "Deep Research"
	default:
		return m.String()
	}
}

// Loading returns the message displayed while a turn is in flight.
func (m Mode) Loading() string {
	if m == DeepResearch {
		return "Researching, this may take a few minutes..."
	}
	return "Thinking..."
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	return m == Normal || m == DeepResearch
}

// Next returns the mode after m, wrapping around.
func (m Mode) Next() Mode {
	all := All()
	for i, candidate := range all {
		if candidate == m {
			return all[(i+1)%len(all)]
		}
	}
	return Normal
}

// Parse converts a flag or config value into a Mode.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "normal mode":
		return Normal, nil
	case "deep", "research", "deep-research", "deep_research", "deep research":
		return DeepResearch, nil
	default:
		return Normal, fmt.Errorf("unknown mode %q (supported: normal, deep)", s)
	}
}
