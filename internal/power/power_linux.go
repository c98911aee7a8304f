//go:build linux

package power

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	upowerService   = "org.freedesktop.UPower"
	upowerPath      = dbus.ObjectPath("/org/freedesktop/UPower")
	onBatteryProp   = "OnBattery"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// linuxReader reads UPower's OnBattery property.
type linuxReader struct{}

func newReader() Reader {
	return linuxReader{}
}

func (linuxReader) LineStatus() (LineStatus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return LineUnknown, fmt.Errorf("connect system bus: %w", err)
	}
	defer conn.Close()

	variant, err := conn.Object(upowerService, upowerPath).GetProperty(upowerService + "." + onBatteryProp)
	if err != nil {
		return LineUnknown, fmt.Errorf("read %s: %w", onBatteryProp, err)
	}
	onBattery, ok := variant.Value().(bool)
	if !ok {
		return LineUnknown, fmt.Errorf("unexpected %s type %s", onBatteryProp, variant.Signature())
	}
	if onBattery {
		return LineOffline, nil
	}
	return LineOnline, nil
}

// linuxHook subscribes to UPower PropertiesChanged signals.
type linuxHook struct {
	log *zap.Logger

	mu   sync.Mutex
	conn *dbus.Conn
	stop chan struct{}
	done chan struct{}
}

func newHook(log *zap.Logger) Hook {
	return &linuxHook{log: log.Named("hook")}
}

func (h *linuxHook) Start(notify func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn != nil {
		return nil // already running
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, upowerService),
	); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to UPower: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)

	h.conn = conn
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.loop(ch, notify, h.stop, h.done)

	h.log.Debug("listening for UPower signals")
	return nil
}

func (h *linuxHook) loop(ch <-chan *dbus.Signal, notify func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if touchesOnBattery(sig) {
				notify()
			}
		}
	}
}

// touchesOnBattery reports whether a PropertiesChanged signal mentions
// OnBattery, either as a changed or an invalidated property.
func touchesOnBattery(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) < 3 {
		return false
	}
	if changed, ok := sig.Body[1].(map[string]dbus.Variant); ok {
		if _, ok := changed[onBatteryProp]; ok {
			return true
		}
	}
	if invalidated, ok := sig.Body[2].([]string); ok {
		for _, name := range invalidated {
			if name == onBatteryProp {
				return true
			}
		}
	}
	return false
}

func (h *linuxHook) Stop() {
	h.mu.Lock()
	conn, stop, done := h.conn, h.stop, h.done
	h.conn, h.stop, h.done = nil, nil, nil
	h.mu.Unlock()

	if conn == nil {
		return
	}
	close(stop)
	<-done
	conn.Close()
}
