package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/voltpower/volt/internal/protocol"
)

// ANSI color/style codes
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	red    = "\033[31m"
	white  = "\033[97m"
)

var (
	out    io.Writer = os.Stderr
	styled           = isTTY
)

// isTTY returns true if stderr is a terminal.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// s wraps text with ANSI codes only when stderr is a TTY.
func s(codes, text string) string {
	if !styled() {
		return text
	}
	return codes + text + reset
}

// Banner prints the startup banner.
//
//	volt v0.3.0
func Banner(version string) {
	fmt.Fprintf(out, "\n  %s %s\n", s(bold+cyan, "volt"), s(dim, "v"+version))
}

// KeyValue prints a labeled line:  ▸ label  value
func KeyValue(label, value string) {
	fmt.Fprintf(out, "  %s %-11s %s\n", s(cyan, "▸"), s(dim, label), s(white, value))
}

// Info prints an info line:  ● message
func Info(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintf(out, "  %s %s\n", s(cyan, "●"), msg)
}

// Success prints a success line:  ✔ message
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintf(out, "  %s %s\n", s(green, "✔"), msg)
}

// Warn prints a warning line:  ▲ message
func Warn(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintf(out, "  %s %s\n", s(yellow, "▲"), msg)
}

// Error prints an error line:  ✖ message
func Error(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintf(out, "  %s %s\n", s(red, "✖"), msg)
}

// Separator prints a dim horizontal line.
func Separator() {
	fmt.Fprintf(out, "  %s\n", s(dim, strings.Repeat("─", 48)))
}

// Dim wraps text in dim style (for use in other formatted output).
func Dim(text string) string {
	return s(dim, text)
}

// Plan prints one catalog row. The active plan is marked and bold; tags
// name the power sources the plan is saved for.
//
//	● Balanced      381b4222-f694-41f0-9685-ff5bb260df2e  plugged in
//	  Power saver   a1841308-3541-4fab-bc81-f71556f20b4a
func Plan(active bool, name, id string, tags ...string) {
	mark := " "
	if active {
		mark = s(green, "●")
		name = s(bold, fmt.Sprintf("%-20s", name))
	} else {
		name = fmt.Sprintf("%-20s", name)
	}
	line := fmt.Sprintf("  %s %s %s", mark, name, s(dim, id))
	if len(tags) > 0 {
		line += "  " + s(cyan, strings.Join(tags, ", "))
	}
	fmt.Fprintln(out, line)
}

// Event prints one status feed event.
func Event(e protocol.Event) {
	ts := e.At.Local().Format("15:04:05")
	switch e.Kind {
	case "state":
		if !e.Changed {
			return
		}
		Info("%s %s %s %s", Dim(ts), label(e.Previous), s(yellow, "→"), s(bold, label(e.Current)))
	case "activated":
		Success("%s plan %s activated for %s %s", Dim(ts), e.Plan, label(e.Current), Dim("("+e.Origin+")"))
	case "activation_failed":
		Error("%s plan %s failed for %s: %s", Dim(ts), e.Plan, label(e.Current), e.Error)
	case "preference_saved":
		Success("%s %s → %s saved", Dim(ts), label(e.State), e.Plan)
	case "preference_failed":
		Error("%s saving %s → %s: %s", Dim(ts), label(e.State), e.Plan, e.Error)
	default:
		Info("%s %s", Dim(ts), e.Kind)
	}
}

// Status prints a status snapshot.
func Status(st protocol.Status) {
	KeyValue("Power", label(st.State))
	for _, key := range []string{"plugged_in", "on_battery"} {
		v := "(none)"
		if id := st.Preferences[key]; id != nil {
			v = *id
		}
		KeyValue(label(key), v)
	}
}

func label(key string) string {
	switch key {
	case "plugged_in":
		return "Plugged In"
	case "on_battery":
		return "On Battery"
	case "", "unknown":
		return "Unknown"
	default:
		return key
	}
}
