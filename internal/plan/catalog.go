package plan

import (
	"bufio"
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/executor"
)

const (
	// DefaultCommand is the plan listing and switching tool.
	DefaultCommand = "powercfg"
	// DefaultMarker introduces a plan line in English powercfg output.
	DefaultMarker = "Power Scheme GUID:"

	listFlag   = "/L"
	switchFlag = "/S"
	activeFlag = "*"
)

// Options configures Catalog and Switcher.
type Options struct {
	// Command is the powercfg binary. Empty selects DefaultCommand.
	Command string
	// Marker is the label preceding each identifier. Empty selects DefaultMarker.
	Marker string
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Command == "" {
		o.Command = DefaultCommand
	}
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Catalog lists the available plans. Every call runs the listing command;
// nothing is cached because the active plan can change outside this process.
type Catalog struct {
	runner executor.Runner
	opts   Options
}

// NewCatalog creates a Catalog that runs commands through runner.
func NewCatalog(runner executor.Runner, opts Options) *Catalog {
	return &Catalog{runner: runner, opts: opts.withDefaults()}
}

// List runs the listing command and parses its output. Malformed lines are
// logged and skipped.
func (c *Catalog) List(ctx context.Context) (Snapshot, error) {
	args := []string{listFlag}
	res, err := c.runner.Run(ctx, c.opts.Command, args...)
	if err != nil {
		return Snapshot{}, &CommandError{Command: c.opts.Command, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	if res.ExitCode != 0 {
		return Snapshot{}, &CommandError{Command: c.opts.Command, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	snap, malformed := Parse(res.Stdout, c.opts.Marker)
	for _, e := range malformed {
		c.opts.Logger.Warn("skipping catalog record", zap.Error(e))
	}
	return snap, nil
}

// Parse extracts plans from listing output. Each line containing marker
// holds one plan: the identifier follows the marker, the display name sits
// in parentheses and a trailing "*" flags the active plan. Lines whose
// identifier does not parse are returned as MalformedRecordError values and
// do not stop the scan.
func Parse(output, marker string) (Snapshot, []error) {
	if marker == "" {
		marker = DefaultMarker
	}

	var (
		snap      Snapshot
		malformed []error
		lineNo    int
	)
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}

		token, name, active := splitRecord(line[idx+len(marker):])
		id, err := ParseID(token)
		if err != nil {
			malformed = append(malformed, &MalformedRecordError{Line: lineNo, Token: token, Err: err})
			continue
		}
		if name == "" {
			name = id.String()
		}
		snap.Plans = append(snap.Plans, Plan{ID: id, Name: name})
		if active && snap.Active == nil {
			activeID := id
			snap.Active = &activeID
		}
	}
	return snap, malformed
}

// splitRecord splits "<id>  (<name>) *" into its parts.
func splitRecord(rest string) (token, name string, active bool) {
	token = rest
	var tail string
	if open := strings.Index(rest, "("); open >= 0 {
		token = rest[:open]
		inner := rest[open+1:]
		if closeIdx := strings.LastIndex(inner, ")"); closeIdx >= 0 {
			name = inner[:closeIdx]
			tail = inner[closeIdx+1:]
		} else {
			name = inner
		}
	}

	token = strings.TrimSpace(token)
	if strings.HasSuffix(token, activeFlag) {
		active = true
		token = strings.TrimSpace(strings.TrimSuffix(token, activeFlag))
	}
	if strings.Contains(tail, activeFlag) {
		active = true
	}
	return token, strings.TrimSpace(name), active
}
