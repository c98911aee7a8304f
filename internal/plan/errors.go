package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidID is matched by every InvalidIDError.
var ErrInvalidID = errors.New("invalid plan identifier")

// InvalidIDError reports a string that is not a plan identifier.
type InvalidIDError struct {
	Value string
	Err   error
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid plan identifier %q", e.Value)
}

func (e *InvalidIDError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidID}
	}
	return []error{ErrInvalidID, e.Err}
}

// MalformedRecordError reports a catalog line that could not be turned into
// a plan. It is recoverable: the line is skipped.
type MalformedRecordError struct {
	Line  int
	Token string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("catalog line %d: malformed record %q: %v", e.Line, e.Token, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// CommandError reports an external command that could not be started or
// exited non-zero.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	cmdline := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", cmdline, e.Err)
	}
	msg := fmt.Sprintf("%s: exit status %d", cmdline, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }
