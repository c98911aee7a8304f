package monitor

import (
	"time"

	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
)

// Command is a user request executed on the monitor goroutine. The set of
// variants is closed: SetPreference and ActivateNow.
type Command interface {
	command()
}

// SetPreference binds Plan to State. When State is the observed state the
// plan is also activated.
type SetPreference struct {
	State power.State
	Plan  plan.ID
}

// ActivateNow activates Plan without touching preferences.
type ActivateNow struct {
	Plan plan.ID
}

func (SetPreference) command() {}
func (ActivateNow) command()   {}

// Origin says what caused an activation.
type Origin string

const (
	OriginTransition Origin = "transition"
	OriginUser       Origin = "user"
	OriginStartup    Origin = "startup"
)

// EventKind classifies an Event.
type EventKind string

const (
	// EventState follows every processed notification, whether or not the
	// state changed.
	EventState            EventKind = "state"
	EventActivated        EventKind = "activated"
	EventActivationFailed EventKind = "activation_failed"
	EventPreferenceSaved  EventKind = "preference_saved"
	EventPreferenceFailed EventKind = "preference_failed"
)

// Event describes something the monitor did.
type Event struct {
	Kind     EventKind
	Previous power.State
	Current  power.State
	Changed  bool
	Origin   Origin
	// State is the preference key for preference events.
	State power.State
	Plan  *plan.ID
	Err   error
	At    time.Time
}
