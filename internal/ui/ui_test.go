package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voltpower/volt/internal/protocol"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevStyled := out, styled
	out, styled = &buf, func() bool { return false }
	t.Cleanup(func() { out, styled = prevOut, prevStyled })
	return &buf
}

func TestPlan(t *testing.T) {
	buf := capture(t)
	Plan(true, "Balanced", "381b4222-f694-41f0-9685-ff5bb260df2e", "plugged in")
	Plan(false, "Power saver", "a1841308-3541-4fab-bc81-f71556f20b4a")

	assert.Equal(t,
		"  ● Balanced             381b4222-f694-41f0-9685-ff5bb260df2e  plugged in\n"+
			"    Power saver          a1841308-3541-4fab-bc81-f71556f20b4a\n",
		buf.String())
}

func TestEvent(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.Local)

	buf := capture(t)
	Event(protocol.Event{Kind: "state", Previous: "plugged_in", Current: "on_battery", Changed: true, At: at})
	assert.Equal(t, "  ● 09:30:00 Plugged In → On Battery\n", buf.String())

	buf.Reset()
	Event(protocol.Event{Kind: "state", Previous: "on_battery", Current: "on_battery", At: at})
	assert.Empty(t, buf.String(), "unchanged state is not printed")

	buf.Reset()
	Event(protocol.Event{Kind: "activation_failed", Current: "on_battery", Plan: "a1841308-3541-4fab-bc81-f71556f20b4a", Error: "exit status 1", At: at})
	assert.Equal(t, "  ✖ 09:30:00 plan a1841308-3541-4fab-bc81-f71556f20b4a failed for On Battery: exit status 1\n", buf.String())
}

func TestStatus(t *testing.T) {
	buf := capture(t)
	id := "381b4222-f694-41f0-9685-ff5bb260df2e"
	Status(protocol.Status{State: "plugged_in", Preferences: map[string]*string{"plugged_in": &id, "on_battery": nil}})

	assert.Contains(t, buf.String(), "Power       Plugged In")
	assert.Contains(t, buf.String(), "Plugged In  "+id)
	assert.Contains(t, buf.String(), "On Battery  (none)")
}

func TestStyledOutput(t *testing.T) {
	buf := capture(t)
	styled = func() bool { return true }
	Success("done")
	assert.Equal(t, "  \033[32m✔\033[0m done\n", buf.String())
}
