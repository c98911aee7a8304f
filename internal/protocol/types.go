package protocol

import "time"

// Frame types on the status feed.
const (
	TypeHello = "hello"
	TypeEvent = "event"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Frame is one message on the status feed. The server sends a hello frame
// carrying Status on connect, then one event frame per monitor event.
type Frame struct {
	Type   string  `json:"type"`
	Status *Status `json:"status,omitempty"`
	Event  *Event  `json:"event,omitempty"`
}

// Status is the body of GET /status and of the hello frame.
type Status struct {
	State   string `json:"state"`
	Label   string `json:"label"`
	Version string `json:"version,omitempty"`
	// Preferences maps plugged_in / on_battery to a plan GUID or null.
	Preferences map[string]*string `json:"preferences"`
}

// Event mirrors a monitor event.
type Event struct {
	Kind     string    `json:"kind"`
	Previous string    `json:"previous,omitempty"`
	Current  string    `json:"current,omitempty"`
	Changed  bool      `json:"changed,omitempty"`
	Origin   string    `json:"origin,omitempty"`
	State    string    `json:"state,omitempty"` // preference key for preference events
	Plan     string    `json:"plan,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// ErrorPayload for error responses.
type ErrorPayload struct {
	Error string `json:"error"`
}
