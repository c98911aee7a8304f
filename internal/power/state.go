package power

import (
	"fmt"
	"strings"
)

// State is the power source the host is running on.
type State int

const (
	// Unknown is only observed before the first successful reading.
	Unknown State = iota
	AC
	Battery
)

// States lists the states a preference can be bound to.
var States = []State{AC, Battery}

// Key is the stable name used in the preference file.
func (s State) Key() string {
	switch s {
	case AC:
		return "plugged_in"
	case Battery:
		return "on_battery"
	default:
		return "unknown"
	}
}

// Label is the human-readable name.
func (s State) Label() string {
	switch s {
	case AC:
		return "Plugged In"
	case Battery:
		return "On Battery"
	default:
		return "Unknown"
	}
}

func (s State) String() string { return s.Key() }

// Valid reports whether s is AC or Battery.
func (s State) Valid() bool {
	return s == AC || s == Battery
}

// ParseState accepts a stable key or the short aliases "ac" and "battery".
func ParseState(v string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "plugged_in", "ac", "plugged-in":
		return AC, nil
	case "on_battery", "battery", "on-battery", "dc":
		return Battery, nil
	}
	return Unknown, fmt.Errorf("unknown power state %q (want ac or battery)", v)
}

// LineStatus is the raw AC-line indicator reported by the OS.
type LineStatus uint8

const (
	LineOffline LineStatus = 0
	LineOnline  LineStatus = 1
	// LineUnknown is what Windows reports when it cannot tell.
	LineUnknown LineStatus = 255
)

// State maps the indicator to a power state. ok is false for any value
// other than the two known codes.
func (l LineStatus) State() (s State, ok bool) {
	switch l {
	case LineOffline:
		return Battery, true
	case LineOnline:
		return AC, true
	}
	return Unknown, false
}
