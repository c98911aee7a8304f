// Package power observes the host's power source.
package power

import (
	"errors"

	"go.uber.org/zap"
)

// ErrUnsupported is returned on platforms without a notification mechanism.
var ErrUnsupported = errors.New("power source monitoring is not supported on this platform")

// Reader queries the instantaneous AC-line indicator.
type Reader interface {
	LineStatus() (LineStatus, error)
}

// Hook delivers OS power-status-change notifications. A notification says
// only that something changed; the receiver re-queries a Reader.
type Hook interface {
	// Start registers with the OS and calls notify once per notification,
	// from a goroutine owned by the Hook. It returns after registration
	// succeeded or failed.
	Start(notify func()) error

	// Stop unregisters and waits for the delivering goroutine to exit.
	// Safe to call multiple times and before Start.
	Stop()
}

// NewReader returns a platform-appropriate Reader.
// See power_windows.go, power_linux.go, power_other.go.
func NewReader() Reader {
	return newReader()
}

// NewHook returns a platform-appropriate Hook.
func NewHook(log *zap.Logger) Hook {
	if log == nil {
		log = zap.NewNop()
	}
	return newHook(log)
}

// Current reads the indicator and maps it to a State.
func Current(r Reader) (State, error) {
	l, err := r.LineStatus()
	if err != nil {
		return Unknown, err
	}
	s, _ := l.State()
	return s, nil
}
